package diarize

import (
	"fmt"
	"math"
)

const (
	// Cosine similarity needed to join an existing speaker centroid.
	clusterSimilarityThreshold = 0.65
	// Adjacent same-speaker segments closer than this are merged.
	mergeGapSeconds = 0.10
)

// EmbeddedWindow is a fixed-length speaker embedding for one audio window.
// The SpeechBrain runner emits these; clustering happens here so the Go side
// stays deterministic and testable.
type EmbeddedWindow struct {
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
	Embedding []float64 `json:"embedding"`
}

// ClusterEmbeddings assigns speaker labels to embedding windows by online
// greedy clustering: normalize, join the nearest centroid above the cosine
// threshold or spawn a new speaker, then merge adjacent same-speaker
// segments and drop segments shorter than minSegmentDuration.
func ClusterEmbeddings(windows []EmbeddedWindow, minSegmentDuration float64) ([]SpeakerSegment, error) {
	var centroids [][]float64
	var counts []int
	var segments []SpeakerSegment

	for _, win := range windows {
		emb, err := normalize(win.Embedding)
		if err != nil {
			return nil, fmt.Errorf("window [%v, %v): %w", win.Start, win.End, err)
		}

		bestIdx := -1
		bestSim := clusterSimilarityThreshold
		for i, centroid := range centroids {
			if sim := dot(emb, centroid); sim >= bestSim {
				bestSim = sim
				bestIdx = i
			}
		}

		if bestIdx < 0 {
			centroids = append(centroids, emb)
			counts = append(counts, 1)
			bestIdx = len(centroids) - 1
		} else {
			updateCentroid(centroids[bestIdx], emb, counts[bestIdx])
			counts[bestIdx]++
		}

		speaker := fmt.Sprintf("SPEAKER_%02d", bestIdx)
		if n := len(segments); n > 0 && segments[n-1].Speaker == speaker && win.Start-segments[n-1].End <= mergeGapSeconds {
			segments[n-1].End = win.End
			continue
		}
		segments = append(segments, SpeakerSegment{Start: win.Start, End: win.End, Speaker: speaker})
	}

	if minSegmentDuration <= 0 {
		return segments, nil
	}
	var kept []SpeakerSegment
	for _, seg := range segments {
		if seg.End-seg.Start >= minSegmentDuration {
			kept = append(kept, seg)
		}
	}
	return kept, nil
}

func normalize(v []float64) ([]float64, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, fmt.Errorf("zero-norm embedding")
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out, nil
}

func dot(a, b []float64) float64 {
	if len(a) != len(b) {
		return -1
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// updateCentroid folds a normalized embedding into a running mean and
// re-normalizes in place.
func updateCentroid(centroid, emb []float64, count int) {
	n := float64(count)
	var norm float64
	for i := range centroid {
		centroid[i] = (centroid[i]*n + emb[i]) / (n + 1)
		norm += centroid[i] * centroid[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range centroid {
		centroid[i] /= norm
	}
}
