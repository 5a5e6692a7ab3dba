package values

import "fmt"

// ConnectionType is the kind of connection a user is seeking
type ConnectionType string

const (
	ConnectionFriendship    ConnectionType = "friendship"
	ConnectionCollaboration ConnectionType = "collaboration"
	ConnectionMentorship    ConnectionType = "mentorship"
	ConnectionRomantic      ConnectionType = "romantic"
)

var knownConnectionTypes = map[ConnectionType]bool{
	ConnectionFriendship:    true,
	ConnectionCollaboration: true,
	ConnectionMentorship:    true,
	ConnectionRomantic:      true,
}

// Preferences modifies how matches are ranked for a user.
// Preferences never alter profile content and never leak into the symmetric
// pair score; they apply at the ranking stage only.
type Preferences struct {
	UserID                   string             `json:"user_id"`
	ConnectionTypesSought    []ConnectionType   `json:"connection_types_sought"`
	DimensionWeightOverrides map[string]float64 `json:"dimension_weight_overrides"`
	Version                  int64              `json:"version"`
}

// NewPreferences creates empty preferences for a user
func NewPreferences(userID string) *Preferences {
	return &Preferences{
		UserID:                   userID,
		DimensionWeightOverrides: make(map[string]float64),
	}
}

// Validate checks override ranges and connection types against the catalog
func (p *Preferences) Validate(catalog *Catalog) error {
	for _, t := range p.ConnectionTypesSought {
		if !knownConnectionTypes[t] {
			return fmt.Errorf("unknown connection type: %s", t)
		}
	}
	for id, w := range p.DimensionWeightOverrides {
		if w < 0.0 || w > 1.0 {
			return fmt.Errorf("weight override for %s: %.2f out of range [0, 1]", id, w)
		}
		if catalog != nil && !catalog.Has(id) {
			return ErrUnknownDimension{DimensionID: id}
		}
	}
	return nil
}

// Override returns the requester-side weight for a dimension, falling back to
// the given importance when no override is set
func (p *Preferences) Override(dimensionID string, importance float64) float64 {
	if p == nil {
		return importance
	}
	if w, ok := p.DimensionWeightOverrides[dimensionID]; ok {
		return w
	}
	return importance
}

// Snapshot returns an immutable deep copy of the preferences
func (p *Preferences) Snapshot() *Preferences {
	if p == nil {
		return nil
	}
	overrides := make(map[string]float64, len(p.DimensionWeightOverrides))
	for id, w := range p.DimensionWeightOverrides {
		overrides[id] = w
	}
	types := make([]ConnectionType, len(p.ConnectionTypesSought))
	copy(types, p.ConnectionTypesSought)
	return &Preferences{
		UserID:                   p.UserID,
		ConnectionTypesSought:    types,
		DimensionWeightOverrides: overrides,
		Version:                  p.Version,
	}
}
