package values

import (
	"fmt"
	"time"
)

// Dimension represents one axis of a user's declared stance
type Dimension struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Position   float64 `json:"position"`   // declared stance, -1.0 to 1.0
	Importance float64 `json:"importance"` // weight in matching, 0.0 to 1.0
	Confidence float64 `json:"confidence"` // how reliably the dimension was elicited, 0.0 to 1.0
}

// Validate checks that the dimension's numeric fields are in range
func (d Dimension) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("dimension id is required")
	}
	if d.Position < -1.0 || d.Position > 1.0 {
		return fmt.Errorf("dimension %s: position %.2f out of range [-1, 1]", d.ID, d.Position)
	}
	if d.Importance < 0.0 || d.Importance > 1.0 {
		return fmt.Errorf("dimension %s: importance %.2f out of range [0, 1]", d.ID, d.Importance)
	}
	if d.Confidence < 0.0 || d.Confidence > 1.0 {
		return fmt.Errorf("dimension %s: confidence %.2f out of range [0, 1]", d.ID, d.Confidence)
	}
	return nil
}

// Profile holds a user's weighted value dimensions.
// A profile is owned exclusively by its user and mutated only through explicit
// edits; match computation always works on a Snapshot.
type Profile struct {
	UserID            string               `json:"user_id"`
	Dimensions        map[string]Dimension `json:"dimensions"`
	LastUpdated       time.Time            `json:"last_updated"`
	OverallConfidence float64              `json:"overall_confidence"`
	Version           int64                `json:"version"` // bumped on every write, backs cache keys
}

// NewProfile creates an empty profile for a user
func NewProfile(userID string) *Profile {
	return &Profile{
		UserID:      userID,
		Dimensions:  make(map[string]Dimension),
		LastUpdated: time.Now().UTC(),
	}
}

// Validate checks every dimension against the catalog and its own ranges
func (p *Profile) Validate(catalog *Catalog) error {
	if p.UserID == "" {
		return fmt.Errorf("profile user id is required")
	}
	for id, d := range p.Dimensions {
		if id != d.ID {
			return fmt.Errorf("dimension map key %q does not match dimension id %q", id, d.ID)
		}
		if err := d.Validate(); err != nil {
			return err
		}
		if catalog != nil && !catalog.Has(id) {
			return ErrUnknownDimension{DimensionID: id}
		}
	}
	return nil
}

// SetDimension upserts a dimension and bumps the profile version
func (p *Profile) SetDimension(d Dimension) {
	if p.Dimensions == nil {
		p.Dimensions = make(map[string]Dimension)
	}
	p.Dimensions[d.ID] = d
	p.touch()
}

// RemoveDimension deletes a dimension and bumps the profile version
func (p *Profile) RemoveDimension(id string) {
	delete(p.Dimensions, id)
	p.touch()
}

func (p *Profile) touch() {
	p.LastUpdated = time.Now().UTC()
	p.Version++
	p.OverallConfidence = p.computeOverallConfidence()
}

// computeOverallConfidence is the importance-weighted mean of dimension confidences
func (p *Profile) computeOverallConfidence() float64 {
	var sum, weight float64
	for _, d := range p.Dimensions {
		sum += d.Confidence * d.Importance
		weight += d.Importance
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

// Snapshot returns an immutable deep copy of the profile.
// Ranking passes take one snapshot per profile up front so concurrent edits
// are never visible mid-pass.
func (p *Profile) Snapshot() *Profile {
	dims := make(map[string]Dimension, len(p.Dimensions))
	for id, d := range p.Dimensions {
		dims[id] = d
	}
	return &Profile{
		UserID:            p.UserID,
		Dimensions:        dims,
		LastUpdated:       p.LastUpdated,
		OverallConfidence: p.OverallConfidence,
		Version:           p.Version,
	}
}

// ErrUnknownDimension is returned when a profile references a dimension
// that is not in the catalog
type ErrUnknownDimension struct {
	DimensionID string
}

func (e ErrUnknownDimension) Error() string {
	return fmt.Sprintf("unknown value dimension: %s", e.DimensionID)
}
