// Package dedup suppresses transcriptions that repeat recently emitted text,
// which happens when neighbouring chunks overlap at their boundaries.
package dedup

import "strings"

const (
	DefaultSize = 5

	// minWords below which a candidate is treated as noise
	minWords = 2

	similarityThreshold = 0.7
)

// History holds the last N emitted texts, oldest first. Not safe for
// concurrent use.
type History struct {
	size    int
	entries [][]string
}

func New(size int) *History {
	if size <= 0 {
		size = DefaultSize
	}
	return &History{size: size}
}

// IsDuplicate reports whether text is noise or too similar to a recent entry.
func (h *History) IsDuplicate(text string) bool {
	words := strings.Fields(text)
	if len(words) < minWords {
		return true
	}

	for _, prev := range h.entries {
		if Similarity(words, prev) > similarityThreshold {
			return true
		}
	}
	return false
}

// Record appends text and evicts the oldest entry beyond the capacity.
func (h *History) Record(text string) {
	h.entries = append(h.entries, strings.Fields(text))
	if len(h.entries) > h.size {
		h.entries = h.entries[len(h.entries)-h.size:]
	}
}

func (h *History) Len() int {
	return len(h.entries)
}

// Similarity is the count of candidate words present in prev divided by the
// longer of the two word counts.
func Similarity(candidate, prev []string) float64 {
	longest := max(len(candidate), len(prev))
	if longest == 0 {
		return 0
	}

	seen := make(map[string]struct{}, len(prev))
	for _, w := range prev {
		seen[w] = struct{}{}
	}

	overlap := 0
	for _, w := range candidate {
		if _, ok := seen[w]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(longest)
}
