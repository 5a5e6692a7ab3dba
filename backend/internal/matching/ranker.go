package matching

import (
	"container/heap"
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"resonance/backend/internal/values"
	apperrors "resonance/backend/pkg/errors"
)

// RankedMatch is one row of a ranked candidate list. Resonance here is the
// requester's preference-adjusted value used for ordering; the symmetric pair
// fact is available separately via the scorer.
type RankedMatch struct {
	CandidateID       string   `json:"candidate_id"`
	Resonance         float64  `json:"resonance"`
	SharedDimensions  []string `json:"shared_dimensions"`
	TensionDimensions []string `json:"tension_dimensions"`
}

// Ranking is the ordered result of a ranking pass
type Ranking struct {
	Matches []RankedMatch `json:"matches"`
	Partial bool          `json:"partial"` // scan budget exhausted; list covers only part of the pool
	Scanned int           `json:"scanned"`
}

// RankerConfig bounds the work a ranking pass may do
type RankerConfig struct {
	HeapThreshold int // pool size above which top-K uses a bounded heap instead of a full sort
	ScanBudget    int // max candidates scored per pass; beyond this the result is partial
	Concurrency   int // parallel scoring workers
}

// Ranker produces ordered, filtered candidate lists from pairwise scores.
// Scoring is stateless and pure, so candidates fan out across workers with no
// locking.
type Ranker struct {
	scorer *Scorer
	cfg    RankerConfig
}

// NewRanker creates a ranker around a scorer
func NewRanker(scorer *Scorer, cfg RankerConfig) *Ranker {
	if cfg.HeapThreshold < 1 {
		cfg.HeapThreshold = 256
	}
	if cfg.ScanBudget < 1 {
		cfg.ScanBudget = 10000
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 8
	}
	return &Ranker{scorer: scorer, cfg: cfg}
}

type rankEntry struct {
	match RankedMatch
}

// Rank scores the requester against each candidate and returns the top k
// matches by preference-adjusted resonance, tie-broken by candidate id
// ascending. Candidates with no shared values are excluded, not ranked last.
// k <= 0 returns the full ranked pool.
//
// The pass snapshots every profile involved up front; concurrent edits are
// not visible mid-pass.
func (r *Ranker) Rank(ctx context.Context, requester *values.Profile, prefs *values.Preferences, candidates []*values.Profile, k int) (*Ranking, error) {
	req := requester.Snapshot()
	prefsSnap := prefs.Snapshot()

	pool := make([]*values.Profile, 0, len(candidates))
	for _, c := range candidates {
		if c.UserID == req.UserID {
			continue
		}
		pool = append(pool, c.Snapshot())
	}
	// Stable input order so identical inputs always yield identical rankings
	sort.Slice(pool, func(i, j int) bool { return pool[i].UserID < pool[j].UserID })

	partial := false
	if len(pool) > r.cfg.ScanBudget {
		pool = pool[:r.cfg.ScanBudget]
		partial = true
	}

	entries := make([]*rankEntry, len(pool))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i, candidate := range pool {
		i, candidate := i, candidate // per-iteration copies; required under go < 1.22
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			pair, err := r.scorer.Score(req, candidate)
			if err != nil {
				if _, ok := err.(ErrNoSharedValues); ok {
					// Insufficient data to compare; excluded from the list
					return nil
				}
				return err
			}

			adjusted, ok := r.scorer.AdjustedResonance(req, candidate, prefsSnap)
			if !ok {
				return nil
			}

			entries[i] = &rankEntry{match: RankedMatch{
				CandidateID:       candidate.UserID,
				Resonance:         adjusted,
				SharedDimensions:  pair.SharedDimensions,
				TensionDimensions: pair.TensionDimensions,
			}}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if gctx.Err() != nil {
			return nil, apperrors.NewContextCancelled("ranking pass", err)
		}
		return nil, fmt.Errorf("ranking pass aborted: %w", err)
	}

	scored := make([]*rankEntry, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			scored = append(scored, e)
		}
	}

	var top []*rankEntry
	if k > 0 && len(scored) > r.cfg.HeapThreshold && k < len(scored) {
		top = selectTopK(scored, k)
	} else {
		sort.Slice(scored, func(i, j int) bool { return rankLess(scored[j], scored[i]) })
		top = scored
		if k > 0 && len(top) > k {
			top = top[:k]
		}
	}

	matches := make([]RankedMatch, len(top))
	for i, e := range top {
		matches[i] = e.match
	}

	return &Ranking{Matches: matches, Partial: partial, Scanned: len(pool)}, nil
}

// rankLess orders entries worst-first: lower resonance first, then candidate
// id descending, so the heap root is always the entry to evict
func rankLess(a, b *rankEntry) bool {
	if a.match.Resonance != b.match.Resonance {
		return a.match.Resonance < b.match.Resonance
	}
	return a.match.CandidateID > b.match.CandidateID
}

type bottomHeap []*rankEntry

func (h bottomHeap) Len() int            { return len(h) }
func (h bottomHeap) Less(i, j int) bool  { return rankLess(h[i], h[j]) }
func (h bottomHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *bottomHeap) Push(x interface{}) { *h = append(*h, x.(*rankEntry)) }
func (h *bottomHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// selectTopK keeps the best k entries using a size-k heap, bounding the work
// for large pools instead of sorting everything
func selectTopK(scored []*rankEntry, k int) []*rankEntry {
	h := make(bottomHeap, 0, k)
	heap.Init(&h)
	for _, e := range scored {
		if len(h) < k {
			heap.Push(&h, e)
			continue
		}
		if rankLess(h[0], e) {
			h[0] = e
			heap.Fix(&h, 0)
		}
	}

	// Drain worst-first, then reverse into best-first order
	out := make([]*rankEntry, len(h))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(*rankEntry)
	}
	return out
}
