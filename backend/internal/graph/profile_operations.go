package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"resonance/backend/internal/values"
)

// ============================================================================
// Value Profile Operations
// ============================================================================

// UpsertProfile replaces a user's stored value profile. The whole dimension
// set is rewritten in one statement so readers never observe a half-applied
// edit.
func (r *Repository) UpsertProfile(ctx context.Context, profile *values.Profile) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	dims := make([]map[string]interface{}, 0, len(profile.Dimensions))
	for _, d := range profile.Dimensions {
		dims = append(dims, map[string]interface{}{
			"id":         d.ID,
			"name":       d.Name,
			"position":   d.Position,
			"importance": d.Importance,
			"confidence": d.Confidence,
		})
	}

	query := `
		MERGE (u:User {id: $userID})
		SET u.last_updated = datetime($lastUpdated),
		    u.version = $version,
		    u.overall_confidence = $overallConfidence
		WITH u
		OPTIONAL MATCH (u)-[h:HOLDS]->(:Dimension)
		DELETE h
		WITH DISTINCT u
		UNWIND $dimensions AS dim
		MERGE (d:Dimension {id: dim.id})
		ON CREATE SET d.name = dim.name
		MERGE (u)-[h2:HOLDS]->(d)
		SET h2.position = dim.position,
		    h2.importance = dim.importance,
		    h2.confidence = dim.confidence
		RETURN count(d) as dimensions
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"userID":            profile.UserID,
		"lastUpdated":       profile.LastUpdated.UTC().Format(time.RFC3339),
		"version":           profile.Version,
		"overallConfidence": profile.OverallConfidence,
		"dimensions":        dims,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}

	r.logger.Info("Value profile upserted",
		zap.String("user_id", profile.UserID),
		zap.Int64("version", profile.Version),
		zap.Int("dimensions", len(dims)),
	)
	return nil
}

// FetchProfile retrieves a user's value profile
func (r *Repository) FetchProfile(ctx context.Context, userID string) (*values.Profile, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (u:User {id: $userID})
		OPTIONAL MATCH (u)-[h:HOLDS]->(d:Dimension)
		RETURN
			u.id as user_id,
			u.version as version,
			u.last_updated as last_updated,
			u.overall_confidence as overall_confidence,
			collect({
				id: d.id,
				name: d.name,
				position: h.position,
				importance: h.importance,
				confidence: h.confidence
			}) as dimensions
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"userID": userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch record: %w", err)
		}
		return nil, ErrProfileNotFound{UserID: userID}
	}

	record := result.Record()
	profile := &values.Profile{
		UserID:            userID,
		Dimensions:        make(map[string]values.Dimension),
		Version:           getInt64FromRecord(record, "version"),
		LastUpdated:       getTimeFromRecord(record, "last_updated"),
		OverallConfidence: getFloat64FromRecord(record, "overall_confidence"),
	}

	for _, item := range getListFromRecord(record, "dimensions") {
		dimMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		id := getStringFromMap(dimMap, "id")
		if id == "" {
			continue
		}
		profile.Dimensions[id] = values.Dimension{
			ID:         id,
			Name:       getStringFromMap(dimMap, "name"),
			Position:   getFloat64FromMap(dimMap, "position"),
			Importance: getFloat64FromMap(dimMap, "importance"),
			Confidence: getFloat64FromMap(dimMap, "confidence"),
		}
	}

	return profile, nil
}

// UpsertPreferences replaces a user's matching preferences
func (r *Repository) UpsertPreferences(ctx context.Context, prefs *values.Preferences) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	overrides := make([]map[string]interface{}, 0, len(prefs.DimensionWeightOverrides))
	for id, w := range prefs.DimensionWeightOverrides {
		overrides = append(overrides, map[string]interface{}{"id": id, "weight": w})
	}

	types := make([]string, 0, len(prefs.ConnectionTypesSought))
	for _, t := range prefs.ConnectionTypesSought {
		types = append(types, string(t))
	}

	query := `
		MERGE (u:User {id: $userID})
		SET u.prefs_version = $version,
		    u.connection_types = $types
		WITH u
		OPTIONAL MATCH (u)-[p:PREFERS]->(:Dimension)
		DELETE p
		WITH DISTINCT u
		UNWIND $overrides AS override
		MATCH (d:Dimension {id: override.id})
		MERGE (u)-[p2:PREFERS]->(d)
		SET p2.weight = override.weight
		RETURN count(d) as overrides
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"userID":    prefs.UserID,
		"version":   prefs.Version,
		"types":     types,
		"overrides": overrides,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}

	r.logger.Info("Matching preferences upserted",
		zap.String("user_id", prefs.UserID),
		zap.Int64("version", prefs.Version),
	)
	return nil
}

// FetchPreferences retrieves a user's matching preferences. A user with no
// stored preferences gets an empty set, not an error.
func (r *Repository) FetchPreferences(ctx context.Context, userID string) (*values.Preferences, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (u:User {id: $userID})
		OPTIONAL MATCH (u)-[p:PREFERS]->(d:Dimension)
		RETURN
			u.prefs_version as version,
			u.connection_types as connection_types,
			collect({id: d.id, weight: p.weight}) as overrides
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"userID": userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch preferences: %w", err)
	}

	prefs := values.NewPreferences(userID)

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch record: %w", err)
		}
		return prefs, nil
	}

	record := result.Record()
	prefs.Version = getInt64FromRecord(record, "version")

	if list, ok := record.Get("connection_types"); ok {
		if items, ok := list.([]interface{}); ok {
			for _, item := range items {
				if s, ok := item.(string); ok {
					prefs.ConnectionTypesSought = append(prefs.ConnectionTypesSought, values.ConnectionType(s))
				}
			}
		}
	}

	for _, item := range getListFromRecord(record, "overrides") {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		id := getStringFromMap(m, "id")
		if id == "" {
			continue
		}
		prefs.DimensionWeightOverrides[id] = getFloat64FromMap(m, "weight")
	}

	return prefs, nil
}
