package matching

import (
	"fmt"
	"math"
	"sort"

	"resonance/backend/internal/values"
)

// PairScore is the symmetric compatibility fact for a pair of users.
// It is derived and ephemeral: recomputed on demand or cached with explicit
// invalidation. UserA is always the lexicographically smaller user id.
type PairScore struct {
	UserA                    string             `json:"user_a"`
	UserB                    string             `json:"user_b"`
	Resonance                float64            `json:"resonance"`
	PerDimensionContribution map[string]float64 `json:"per_dimension_contribution"`
	SharedDimensions         []string           `json:"shared_dimensions"`
	TensionDimensions        []string           `json:"tension_dimensions"`
}

// Weighting combines the two users' importance values for one dimension.
// The exact function is a replaceable policy, not a fixed contract.
type Weighting func(importanceA, importanceB float64) float64

// SymmetricWeighting averages both users' importance so that no single user's
// priorities dominate the underlying pair fact
func SymmetricWeighting(importanceA, importanceB float64) float64 {
	return (importanceA + importanceB) / 2
}

// Scorer computes resonance between two value profiles.
// It is deterministic and pure; the same inputs always yield the same
// PairScore regardless of argument order.
type Scorer struct {
	weighting            Weighting
	sharedThreshold      float64 // max |position gap| for near-agreement
	tensionThreshold     float64 // min |position gap| for material disagreement
	tensionMinImportance float64 // both parties must care at least this much
}

// ScorerOption configures a Scorer
type ScorerOption func(*Scorer)

// WithWeighting swaps the importance-combining policy
func WithWeighting(w Weighting) ScorerOption {
	return func(s *Scorer) { s.weighting = w }
}

// WithThresholds overrides the shared/tension position-gap thresholds
func WithThresholds(shared, tension float64) ScorerOption {
	return func(s *Scorer) {
		s.sharedThreshold = shared
		s.tensionThreshold = tension
	}
}

// NewScorer creates a scorer with the default symmetric weighting
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{
		weighting:            SymmetricWeighting,
		sharedThreshold:      0.25,
		tensionThreshold:     1.25,
		tensionMinImportance: 0.5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the symmetric pair score over the dimensions shared by both
// profiles. Dimensions present in only one profile are ignored. When the
// intersection is empty, or carries no weight, it returns ErrNoSharedValues:
// "no data" is a normal outcome, never a numeric zero.
func (s *Scorer) Score(a, b *values.Profile) (*PairScore, error) {
	// Canonical ordering of the pair: argument order must not change the
	// result, including floating-point summation order.
	if a.UserID > b.UserID {
		a, b = b, a
	}

	shared := sharedDimensionIDs(a, b)
	if len(shared) == 0 {
		return nil, ErrNoSharedValues{UserA: a.UserID, UserB: b.UserID}
	}

	var sumContribution, sumWeight float64
	contributions := make(map[string]float64, len(shared))
	var sharedDims, tensionDims []string

	for _, id := range shared {
		da := a.Dimensions[id]
		db := b.Dimensions[id]

		gap := math.Abs(da.Position - db.Position)
		weight := s.weighting(da.Importance, db.Importance)
		alignment := 1.0 - gap/2.0

		contributions[id] = alignment * weight
		sumContribution += alignment * weight
		sumWeight += weight

		if gap <= s.sharedThreshold {
			sharedDims = append(sharedDims, id)
		}
		if gap >= s.tensionThreshold &&
			da.Importance >= s.tensionMinImportance &&
			db.Importance >= s.tensionMinImportance {
			tensionDims = append(tensionDims, id)
		}
	}

	if sumWeight == 0 {
		// All shared dimensions carry zero weight; indistinguishable from no
		// data as far as the score is concerned.
		return nil, ErrNoSharedValues{UserA: a.UserID, UserB: b.UserID}
	}

	// Normalize contributions so they sum to the resonance itself; the
	// rationale graph surfaces them as-is.
	for id := range contributions {
		contributions[id] /= sumWeight
	}

	return &PairScore{
		UserA:                    a.UserID,
		UserB:                    b.UserID,
		Resonance:                sumContribution / sumWeight,
		PerDimensionContribution: contributions,
		SharedDimensions:         sharedDims,
		TensionDimensions:        tensionDims,
	}, nil
}

// AdjustedResonance recomputes resonance with the requester's weight overrides
// substituted for the requester's own importance only. The candidate's side of
// the weighting is untouched: one user's stated priorities must not alter the
// symmetric fact computed for the other party, only how this requester ranks
// it. Returns ok=false when nothing comparable carries weight.
func (s *Scorer) AdjustedResonance(requester, candidate *values.Profile, prefs *values.Preferences) (float64, bool) {
	shared := sharedDimensionIDs(requester, candidate)
	if len(shared) == 0 {
		return 0, false
	}

	var sumContribution, sumWeight float64
	for _, id := range shared {
		dr := requester.Dimensions[id]
		dc := candidate.Dimensions[id]

		gap := math.Abs(dr.Position - dc.Position)
		weight := s.weighting(prefs.Override(id, dr.Importance), dc.Importance)
		sumContribution += (1.0 - gap/2.0) * weight
		sumWeight += weight
	}

	if sumWeight == 0 {
		return 0, false
	}
	return sumContribution / sumWeight, true
}

// sharedDimensionIDs returns the sorted intersection of dimension ids.
// Sorted iteration keeps float summation order stable across runs.
func sharedDimensionIDs(a, b *values.Profile) []string {
	ids := make([]string, 0, len(a.Dimensions))
	for id := range a.Dimensions {
		if _, ok := b.Dimensions[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ErrNoSharedValues is returned when two profiles have no weighted dimension
// in common. This is data insufficiency, not a fault: surfaced to users as
// "not enough information to compare".
type ErrNoSharedValues struct {
	UserA string
	UserB string
}

func (e ErrNoSharedValues) Error() string {
	return fmt.Sprintf("no shared values between %s and %s", e.UserA, e.UserB)
}
