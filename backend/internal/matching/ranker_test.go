package matching

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resonance/backend/internal/values"
)

func newTestRanker(cfg RankerConfig) *Ranker {
	return NewRanker(NewScorer(), cfg)
}

// Worked example: alice cares a little about transparency (0.3) and a lot
// about autonomy (0.7). bob agrees with her on transparency and disagrees on
// autonomy; carol is the mirror image. By default carol ranks first. With a
// preference override boosting transparency to 1.0, bob overtakes her.
func rankFixture() (requester *values.Profile, candidates []*values.Profile) {
	requester = profileWith("alice",
		dim("transparency", 1.0, 0.3),
		dim("autonomy", 1.0, 0.7),
	)
	bob := profileWith("bob",
		dim("transparency", 1.0, 0.5),
		dim("autonomy", -1.0, 0.5),
	)
	carol := profileWith("carol",
		dim("transparency", -1.0, 0.5),
		dim("autonomy", 1.0, 0.5),
	)
	return requester, []*values.Profile{bob, carol}
}

func TestRanker_DefaultOrdering(t *testing.T) {
	ranker := newTestRanker(RankerConfig{})
	requester, candidates := rankFixture()

	ranking, err := ranker.Rank(context.Background(), requester, values.NewPreferences("alice"), candidates, 0)
	require.NoError(t, err)
	require.Len(t, ranking.Matches, 2)

	assert.Equal(t, "carol", ranking.Matches[0].CandidateID)
	assert.Equal(t, "bob", ranking.Matches[1].CandidateID)
	assert.InDelta(t, 0.6, ranking.Matches[0].Resonance, 1e-12)
	assert.InDelta(t, 0.4, ranking.Matches[1].Resonance, 1e-12)
}

func TestRanker_PreferenceOverrideReordersOnlyRequesterView(t *testing.T) {
	ranker := newTestRanker(RankerConfig{})
	requester, candidates := rankFixture()

	prefs := values.NewPreferences("alice")
	prefs.DimensionWeightOverrides["transparency"] = 1.0

	ranking, err := ranker.Rank(context.Background(), requester, prefs, candidates, 0)
	require.NoError(t, err)
	require.Len(t, ranking.Matches, 2)

	assert.Equal(t, "bob", ranking.Matches[0].CandidateID)
	assert.Equal(t, "carol", ranking.Matches[1].CandidateID)
	assert.InDelta(t, 0.75/1.35, ranking.Matches[0].Resonance, 1e-12)
	assert.InDelta(t, 0.6/1.35, ranking.Matches[1].Resonance, 1e-12)

	// The symmetric pair score does not move with the override
	scorer := NewScorer()
	pair, err := scorer.Score(requester, candidates[0])
	require.NoError(t, err)
	assert.InDelta(t, 0.4, pair.Resonance, 1e-12)
}

func TestRanker_ExcludesCandidatesWithNoSharedValues(t *testing.T) {
	ranker := newTestRanker(RankerConfig{})
	requester := profileWith("alice", dim("transparency", 0.5, 1.0))
	candidates := []*values.Profile{
		profileWith("bob", dim("transparency", 0.5, 1.0)),
		profileWith("carol", dim("autonomy", 0.5, 1.0)), // nothing in common
	}

	ranking, err := ranker.Rank(context.Background(), requester, nil, candidates, 0)
	require.NoError(t, err)
	require.Len(t, ranking.Matches, 1)
	assert.Equal(t, "bob", ranking.Matches[0].CandidateID)
}

func TestRanker_ExcludesSelf(t *testing.T) {
	ranker := newTestRanker(RankerConfig{})
	requester := profileWith("alice", dim("transparency", 0.5, 1.0))
	candidates := []*values.Profile{
		requester,
		profileWith("bob", dim("transparency", 0.5, 1.0)),
	}

	ranking, err := ranker.Rank(context.Background(), requester, nil, candidates, 0)
	require.NoError(t, err)
	require.Len(t, ranking.Matches, 1)
	assert.Equal(t, "bob", ranking.Matches[0].CandidateID)
}

func TestRanker_TieBreakByCandidateID(t *testing.T) {
	ranker := newTestRanker(RankerConfig{})
	requester := profileWith("alice", dim("transparency", 0.5, 1.0))
	// Identical stances, identical scores
	candidates := []*values.Profile{
		profileWith("dave", dim("transparency", 0.5, 1.0)),
		profileWith("bob", dim("transparency", 0.5, 1.0)),
		profileWith("carol", dim("transparency", 0.5, 1.0)),
	}

	ranking, err := ranker.Rank(context.Background(), requester, nil, candidates, 0)
	require.NoError(t, err)
	require.Len(t, ranking.Matches, 3)
	assert.Equal(t, "bob", ranking.Matches[0].CandidateID)
	assert.Equal(t, "carol", ranking.Matches[1].CandidateID)
	assert.Equal(t, "dave", ranking.Matches[2].CandidateID)
}

func TestRanker_TopKTruncates(t *testing.T) {
	ranker := newTestRanker(RankerConfig{})
	requester, candidates := rankFixture()

	ranking, err := ranker.Rank(context.Background(), requester, values.NewPreferences("alice"), candidates, 1)
	require.NoError(t, err)
	require.Len(t, ranking.Matches, 1)
	assert.Equal(t, "carol", ranking.Matches[0].CandidateID)
}

func largePool(n int) (requester *values.Profile, candidates []*values.Profile) {
	requester = profileWith("user-000",
		dim("transparency", 0.8, 0.9),
		dim("autonomy", -0.4, 0.6),
	)
	for i := 1; i <= n; i++ {
		// Spread positions deterministically across the range
		pos := -1.0 + 2.0*float64(i)/float64(n)
		candidates = append(candidates, profileWith(fmt.Sprintf("user-%03d", i),
			dim("transparency", pos, 0.5),
			dim("autonomy", -pos, 0.7),
		))
	}
	return requester, candidates
}

func TestRanker_HeapAndSortPathsAgree(t *testing.T) {
	requester, candidates := largePool(40)

	heapRanker := newTestRanker(RankerConfig{HeapThreshold: 1})
	sortRanker := newTestRanker(RankerConfig{HeapThreshold: 1000})

	viaHeap, err := heapRanker.Rank(context.Background(), requester, nil, candidates, 7)
	require.NoError(t, err)
	viaSort, err := sortRanker.Rank(context.Background(), requester, nil, candidates, 7)
	require.NoError(t, err)

	assert.Equal(t, viaSort.Matches, viaHeap.Matches)
}

func TestRanker_Determinism(t *testing.T) {
	requester, candidates := largePool(40)
	ranker := newTestRanker(RankerConfig{Concurrency: 8})

	first, err := ranker.Rank(context.Background(), requester, nil, candidates, 10)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := ranker.Rank(context.Background(), requester, nil, candidates, 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRanker_ScanBudgetMarksPartial(t *testing.T) {
	requester, candidates := largePool(40)
	ranker := newTestRanker(RankerConfig{ScanBudget: 25})

	ranking, err := ranker.Rank(context.Background(), requester, nil, candidates, 0)
	require.NoError(t, err)
	assert.True(t, ranking.Partial)
	assert.Equal(t, 25, ranking.Scanned)
	assert.Len(t, ranking.Matches, 25)
}

func TestRanker_FullPoolWithinBudgetIsComplete(t *testing.T) {
	requester, candidates := largePool(10)
	ranker := newTestRanker(RankerConfig{ScanBudget: 25})

	ranking, err := ranker.Rank(context.Background(), requester, nil, candidates, 0)
	require.NoError(t, err)
	assert.False(t, ranking.Partial)
	assert.Equal(t, 10, ranking.Scanned)
}

func TestRanker_SnapshotsInputs(t *testing.T) {
	ranker := newTestRanker(RankerConfig{})
	requester := profileWith("alice", dim("transparency", 0.5, 1.0))
	bob := profileWith("bob", dim("transparency", 0.5, 1.0))

	ranking, err := ranker.Rank(context.Background(), requester, nil, []*values.Profile{bob}, 0)
	require.NoError(t, err)
	require.Len(t, ranking.Matches, 1)

	// Mutating the originals after the pass must not affect the result already
	// returned
	bob.SetDimension(dim("transparency", -1.0, 1.0))
	assert.InDelta(t, 1.0, ranking.Matches[0].Resonance, 1e-12)
}

func TestRanker_CancelledContext(t *testing.T) {
	requester, candidates := largePool(40)
	ranker := newTestRanker(RankerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ranker.Rank(ctx, requester, nil, candidates, 0)
	assert.Error(t, err)
}
