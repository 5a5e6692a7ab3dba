package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_HitOnSameVersions(t *testing.T) {
	cache := NewCache()
	scorer := NewScorer()
	a := profileWith("alice", dim("transparency", 0.8, 0.9))
	b := profileWith("bob", dim("transparency", 0.5, 0.6))

	score, err := scorer.Score(a, b)
	require.NoError(t, err)
	cache.Put(a, b, 0, score)

	got, ok := cache.Get(a, b, 0)
	assert.True(t, ok)
	assert.Equal(t, score, got)

	// Argument order must not matter for the pair key
	got, ok = cache.Get(b, a, 0)
	assert.True(t, ok)
	assert.Equal(t, score, got)
}

func TestCache_MissAfterVersionBump(t *testing.T) {
	cache := NewCache()
	scorer := NewScorer()
	a := profileWith("alice", dim("transparency", 0.8, 0.9))
	b := profileWith("bob", dim("transparency", 0.5, 0.6))

	score, err := scorer.Score(a, b)
	require.NoError(t, err)
	cache.Put(a, b, 0, score)

	a.SetDimension(dim("transparency", -0.2, 0.9))
	_, ok := cache.Get(a, b, 0)
	assert.False(t, ok)
}

func TestCache_MissOnDifferentPrefsVersion(t *testing.T) {
	cache := NewCache()
	scorer := NewScorer()
	a := profileWith("alice", dim("transparency", 0.8, 0.9))
	b := profileWith("bob", dim("transparency", 0.5, 0.6))

	score, err := scorer.Score(a, b)
	require.NoError(t, err)
	cache.Put(a, b, 1, score)

	_, ok := cache.Get(a, b, 2)
	assert.False(t, ok)
}

func TestCache_InvalidateDropsAllPairsForUser(t *testing.T) {
	cache := NewCache()
	scorer := NewScorer()
	a := profileWith("alice", dim("transparency", 0.8, 0.9))
	b := profileWith("bob", dim("transparency", 0.5, 0.6))
	c := profileWith("carol", dim("transparency", 0.1, 0.7))

	ab, err := scorer.Score(a, b)
	require.NoError(t, err)
	ac, err := scorer.Score(a, c)
	require.NoError(t, err)
	bc, err := scorer.Score(b, c)
	require.NoError(t, err)

	cache.Put(a, b, 0, ab)
	cache.Put(a, c, 0, ac)
	cache.Put(b, c, 0, bc)
	require.Equal(t, 3, cache.Len())

	cache.Invalidate("alice")

	_, ok := cache.Get(a, b, 0)
	assert.False(t, ok)
	_, ok = cache.Get(a, c, 0)
	assert.False(t, ok)

	// Pairs not involving alice survive
	got, ok := cache.Get(b, c, 0)
	assert.True(t, ok)
	assert.Equal(t, bc, got)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_InvalidateUnknownUserIsNoop(t *testing.T) {
	cache := NewCache()
	cache.Invalidate("nobody")
	assert.Equal(t, 0, cache.Len())
}
