package segment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ScoreHeuristic scores candidates in place by keyword occurrence in the
// snippet, with a light bonus for 15-60s durations.
func ScoreHeuristic(candidates []Candidate, keywords []string) []Candidate {
	var lowered []string
	for _, k := range keywords {
		if k != "" {
			lowered = append(lowered, strings.ToLower(k))
		}
	}
	for i := range candidates {
		base := 0.0
		if candidates[i].Snippet != "" && len(lowered) > 0 {
			text := strings.ToLower(candidates[i].Snippet)
			for _, k := range lowered {
				base += float64(strings.Count(text, k))
			}
		}
		if d := candidates[i].Duration(); d >= 15 && d <= 60 {
			base += 1.0
		}
		candidates[i].Score = base
	}
	return candidates
}

// ChatClient is the chat.completions.create-shaped dependency for LLM
// scoring. Tests inject a fake returning canned JSON.
type ChatClient interface {
	ChatCompletion(ctx context.Context, model string, messages []ChatMessage) (string, error)
}

// ChatMessage is one chat turn sent to the scoring model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type llmCandidate struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Snippet string  `json:"snippet"`
}

type llmScore struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Score float64 `json:"score"`
}

// ScoreLLM asks a chat model to score candidates. The model is expected to
// reply with a JSON array of {start, end, score}; parse failures leave the
// scores unchanged.
func ScoreLLM(ctx context.Context, client ChatClient, model, prompt, transcript string, candidates []Candidate) ([]Candidate, error) {
	if client == nil {
		return nil, fmt.Errorf("LLM client not provided")
	}

	payload := make([]llmCandidate, 0, len(candidates))
	for _, c := range candidates {
		payload = append(payload, llmCandidate{Start: c.Start, End: c.End, Snippet: c.Snippet})
	}
	user, err := json.Marshal(map[string]any{"transcript": transcript, "candidates": payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode scoring request: %w", err)
	}

	content, err := client.ChatCompletion(ctx, model, []ChatMessage{
		{Role: "system", Content: prompt},
		{Role: "user", Content: string(user)},
	})
	if err != nil {
		return nil, fmt.Errorf("LLM scoring failed: %w", err)
	}

	var scores []llmScore
	if err := json.Unmarshal([]byte(content), &scores); err != nil {
		return candidates, nil
	}

	scoreMap := make(map[[2]float64]float64, len(scores))
	for _, s := range scores {
		scoreMap[[2]float64{s.Start, s.End}] = s.Score
	}
	for i := range candidates {
		if score, ok := scoreMap[[2]float64{candidates[i].Start, candidates[i].End}]; ok {
			candidates[i].Score = score
		}
	}
	return candidates, nil
}
