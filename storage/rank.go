package storage

import (
	"cmp"
	"slices"

	"github.com/poiesic/ragchat/core"
)

// CosineDistance returns 1 - a·b for unit vectors.
func CosineDistance(a, b []float32) float32 {
	var sum float32
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return 1 - sum
}

// Ranker keeps the k closest candidates seen so far.
type Ranker struct {
	k       int
	results []core.ScoredChunk
}

// NewRanker creates a ranker for k results.
func NewRanker(k int) *Ranker {
	return &Ranker{k: k}
}

// Admits reports whether a candidate at distance with sequence seq would
// enter the current top k. Callers use it to skip decoding losing entries.
func (r *Ranker) Admits(distance float32, seq uint64) bool {
	if r.k <= 0 {
		return false
	}
	if len(r.results) < r.k {
		return true
	}
	worst := r.results[len(r.results)-1]
	return compareScore(distance, seq, worst.Distance, worst.Seq) < 0
}

// Add inserts a candidate if it ranks within the top k.
func (r *Ranker) Add(candidate core.ScoredChunk) {
	if !r.Admits(candidate.Distance, candidate.Seq) {
		return
	}
	idx, _ := slices.BinarySearchFunc(r.results, candidate, func(a, b core.ScoredChunk) int {
		return compareScore(a.Distance, a.Seq, b.Distance, b.Seq)
	})
	r.results = slices.Insert(r.results, idx, candidate)
	if len(r.results) > r.k {
		r.results = r.results[:r.k]
	}
}

// Results returns the ranked candidates, closest first.
func (r *Ranker) Results() []core.ScoredChunk {
	out := make([]core.ScoredChunk, len(r.results))
	copy(out, r.results)
	return out
}

func compareScore(da float32, sa uint64, db float32, sb uint64) int {
	if c := cmp.Compare(da, db); c != 0 {
		return c
	}
	return cmp.Compare(sa, sb)
}
