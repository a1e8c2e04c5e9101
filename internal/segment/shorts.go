// Package segment proposes and selects time intervals for shorts extraction.
package segment

import (
	"sort"
)

// Candidate is a proposed clip interval with an associated score.
type Candidate struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
}

// Duration returns the candidate duration, never negative.
func (c Candidate) Duration() float64 {
	if c.End < c.Start {
		return 0
	}
	return c.End - c.Start
}

// EqualSplits produces naive equal splits across the duration. The last span
// ends exactly at the duration.
func EqualSplits(duration, clipLength float64) []Candidate {
	if duration <= 0 || clipLength <= 0 {
		return nil
	}
	var segments []Candidate
	for t := 0.0; t < duration; t += clipLength {
		end := t + clipLength
		if end > duration {
			end = duration
		}
		segments = append(segments, Candidate{Start: t, End: end, Reason: "equal_split"})
	}
	return segments
}

// SlidingWindow produces overlapping window candidates with the given stride.
func SlidingWindow(duration, window, stride float64) []Candidate {
	if duration <= 0 || window <= 0 || stride <= 0 {
		return nil
	}
	var segments []Candidate
	for t := 0.0; t < duration; t += stride {
		end := t + window
		if end > duration {
			end = duration
		}
		segments = append(segments, Candidate{Start: t, End: end, Reason: "sliding_window"})
	}
	return segments
}

// SelectTop picks at most maxSegments non-overlapping candidates within the
// duration bounds, maximizing total score. minGap enforces spacing between
// selected segments. Weighted interval scheduling with a cardinality bound:
// O(n log n + n*k).
func SelectTop(candidates []Candidate, maxSegments int, minDuration, maxDuration, minGap float64) []Candidate {
	var filtered []Candidate
	for _, c := range candidates {
		d := c.Duration()
		if c.Start < c.End && d >= minDuration && d <= maxDuration {
			filtered = append(filtered, c)
		}
	}
	if maxSegments <= 0 || len(filtered) == 0 {
		return nil
	}

	intervals := make([]Candidate, len(filtered))
	copy(intervals, filtered)
	sort.SliceStable(intervals, func(i, j int) bool {
		if intervals[i].End != intervals[j].End {
			return intervals[i].End < intervals[j].End
		}
		return intervals[i].Start < intervals[j].Start
	})

	n := len(intervals)
	ends := make([]float64, n)
	for i, c := range intervals {
		ends[i] = c.End
	}

	// pred[i] is the 1-based index of the latest interval ending at or
	// before intervals[i].Start - minGap; 0 means none.
	pred := make([]int, n)
	for i, c := range intervals {
		cutoff := c.Start - minGap
		pred[i] = sort.Search(i, func(j int) bool { return ends[j] > cutoff })
	}

	kMax := maxSegments
	if kMax > n {
		kMax = n
	}
	dp := make([][]float64, n+1)
	for i := range dp {
		dp[i] = make([]float64, kMax+1)
	}
	for i := 1; i <= n; i++ {
		score := intervals[i-1].Score
		p := pred[i-1]
		for k := 1; k <= kMax; k++ {
			skip := dp[i-1][k]
			take := score + dp[p][k-1]
			if take > skip {
				dp[i][k] = take
			} else {
				dp[i][k] = skip
			}
		}
	}

	var selected []Candidate
	for i, k := n, kMax; i > 0 && k > 0; {
		score := intervals[i-1].Score
		p := pred[i-1]
		if score+dp[p][k-1] > dp[i-1][k] {
			selected = append(selected, intervals[i-1])
			i = p
			k--
		} else {
			i--
		}
	}

	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Start < selected[j].Start })
	return selected
}
