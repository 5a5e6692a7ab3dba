package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"resonance/backend/internal/values"
	apperrors "resonance/backend/pkg/errors"
	"resonance/backend/pkg/logger"
)

// Repository handles all Neo4j database operations: value profiles,
// matching preferences, candidate pools and connection requests
type Repository struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext) *Repository {
	return &Repository{
		driver: driver,
		logger: logger.Get(),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// EnsureConstraints creates the uniqueness constraints the schema relies on
func (r *Repository) EnsureConstraints(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	constraints := []string{
		"CREATE CONSTRAINT user_id IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE",
		"CREATE CONSTRAINT dimension_id IF NOT EXISTS FOR (d:Dimension) REQUIRE d.id IS UNIQUE",
		"CREATE CONSTRAINT request_id IF NOT EXISTS FOR (r:ConnectionRequest) REQUIRE r.id IS UNIQUE",
	}
	for _, c := range constraints {
		if _, err := session.Run(ctx, c, nil); err != nil {
			return apperrors.NewGraphQueryFailed("ensure constraints", err)
		}
	}
	return nil
}

// SyncCatalog mirrors the dimension catalog into Dimension nodes so HOLDS
// edges always point at known dimensions
func (r *Repository) SyncCatalog(ctx context.Context, entries []values.CatalogEntry) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		UNWIND $entries AS entry
		MERGE (d:Dimension {id: entry.id})
		SET d.name = entry.name,
		    d.description = entry.description
	`

	params := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		params = append(params, map[string]interface{}{
			"id":          e.ID,
			"name":        e.Name,
			"description": e.Description,
		})
	}

	if _, err := session.Run(ctx, query, map[string]interface{}{"entries": params}); err != nil {
		return apperrors.NewGraphQueryFailed("sync catalog", err)
	}

	r.logger.Info("Dimension catalog synced", zap.Int("dimensions", len(entries)))
	return nil
}

// Errors

// ErrProfileNotFound is returned when a user has no stored value profile
type ErrProfileNotFound struct {
	UserID string
}

func (e ErrProfileNotFound) Error() string {
	return fmt.Sprintf("value profile not found: %s", e.UserID)
}
