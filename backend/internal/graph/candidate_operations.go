package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"resonance/backend/internal/values"
)

// ============================================================================
// Candidate Pool Operations
// ============================================================================

// FetchCandidatePool returns the profiles eligible to be ranked against a
// requester: every profiled user except the requester and anyone already
// connected to them through an accepted request. Further eligibility policy
// (blocks, community membership) belongs to upstream collaborators.
func (r *Repository) FetchCandidatePool(ctx context.Context, userID string, limit int) ([]*values.Profile, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	if limit < 1 {
		limit = 1000
	}

	query := `
		MATCH (c:User)
		WHERE c.id <> $userID
		  AND NOT EXISTS {
		    MATCH (r:ConnectionRequest {status: 'accepted'})
		    WHERE (r.sender_id = $userID AND r.recipient_id = c.id)
		       OR (r.sender_id = c.id AND r.recipient_id = $userID)
		  }
		OPTIONAL MATCH (c)-[h:HOLDS]->(d:Dimension)
		WITH c, collect({
			id: d.id,
			name: d.name,
			position: h.position,
			importance: h.importance,
			confidence: h.confidence
		}) as dimensions
		RETURN
			c.id as user_id,
			c.version as version,
			c.last_updated as last_updated,
			c.overall_confidence as overall_confidence,
			dimensions
		ORDER BY c.id
		LIMIT $limit
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"userID": userID,
		"limit":  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidate pool: %w", err)
	}

	var pool []*values.Profile
	for result.Next(ctx) {
		record := result.Record()
		profile := &values.Profile{
			UserID:            getStringFromRecord(record, "user_id"),
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

		pool = append(pool, profile)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read candidate pool: %w", err)
	}

	return pool, nil
}
