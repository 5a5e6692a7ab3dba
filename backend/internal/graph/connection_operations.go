package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"resonance/backend/internal/connection"
)

// ============================================================================
// Connection Request Operations
// ============================================================================

// RequestStore is the durable connection.Store backed by the graph. The
// uniqueness check on create and the status compare-and-swap each run as a
// single autocommit statement, so racing transitions resolve server-side.
type RequestStore struct {
	repo *Repository
}

// NewRequestStore creates a connection request store around a repository
func NewRequestStore(repo *Repository) *RequestStore {
	return &RequestStore{repo: repo}
}

// Create persists a pending request unless a pending one already exists for
// the pair in either direction
func (s *RequestStore) Create(ctx context.Context, req *connection.Request) error {
	session := s.repo.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (sender:User {id: $senderID})
		MERGE (recipient:User {id: $recipientID})
		WITH sender, recipient
		WHERE NOT EXISTS {
			MATCH (p:ConnectionRequest)
			WHERE p.status IN ['pending', 'accepted']
			  AND ((p.sender_id = $senderID AND p.recipient_id = $recipientID)
			   OR (p.sender_id = $recipientID AND p.recipient_id = $senderID))
		}
		CREATE (r:ConnectionRequest {
			id: $id,
			sender_id: $senderID,
			recipient_id: $recipientID,
			status: 'pending',
			created_at: datetime($createdAt)
		})
		CREATE (r)-[:FROM]->(sender)
		CREATE (r)-[:TO]->(recipient)
		RETURN r.id as id
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id":          req.ID,
		"senderID":    req.SenderID,
		"recipientID": req.RecipientID,
		"createdAt":   req.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to create connection request: %w", err)
	}

	if result.Next(ctx) {
		return nil
	}
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to create connection request: %w", err)
	}

	// No row created: a pending or accepted request already blocks the pair.
	// Fetch it so the caller can surface which direction it runs.
	existing, reverse, err := s.findBlocking(ctx, req.SenderID, req.RecipientID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("connection request %s not created", req.ID)
	}
	return connection.ErrDuplicateRequest{Existing: existing, Reverse: reverse}
}

func (s *RequestStore) findBlocking(ctx context.Context, senderID, recipientID string) (*connection.Request, bool, error) {
	session := s.repo.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (r:ConnectionRequest)
		WHERE r.status IN ['pending', 'accepted']
		  AND ((r.sender_id = $senderID AND r.recipient_id = $recipientID)
		   OR (r.sender_id = $recipientID AND r.recipient_id = $senderID))
		RETURN r.id as id, r.sender_id as sender_id, r.recipient_id as recipient_id,
		       r.status as status, r.created_at as created_at, r.resolved_at as resolved_at
		LIMIT 1
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"senderID":    senderID,
		"recipientID": recipientID,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to find pending request: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, false, fmt.Errorf("failed to read pending request: %w", err)
		}
		return nil, false, nil
	}

	req := requestFromRecord(result.Record())
	reverse := req.SenderID == recipientID && req.Status == connection.StatusPending
	return req, reverse, nil
}

// Get returns a request by id
func (s *RequestStore) Get(ctx context.Context, id string) (*connection.Request, error) {
	session := s.repo.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (r:ConnectionRequest {id: $id})
		RETURN r.id as id, r.sender_id as sender_id, r.recipient_id as recipient_id,
		       r.status as status, r.created_at as created_at, r.resolved_at as resolved_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch connection request: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to read connection request: %w", err)
		}
		return nil, connection.ErrRequestNotFound{RequestID: id}
	}

	return requestFromRecord(result.Record()), nil
}

// CompareAndSwapStatus transitions the request only if its stored status
// matches the guard; the WHERE clause makes the swap atomic server-side
func (s *RequestStore) CompareAndSwapStatus(ctx context.Context, id string, from, to connection.Status, resolvedAt time.Time) (bool, error) {
	session := s.repo.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (r:ConnectionRequest {id: $id})
		WHERE r.status = $from
		SET r.status = $to,
		    r.resolved_at = datetime($resolvedAt)
		RETURN r.id as id
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id":         id,
		"from":       string(from),
		"to":         string(to),
		"resolvedAt": resolvedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false, fmt.Errorf("failed to transition connection request: %w", err)
	}

	if result.Next(ctx) {
		return true, nil
	}
	if err := result.Err(); err != nil {
		return false, fmt.Errorf("failed to transition connection request: %w", err)
	}

	// Distinguish a lost race from an unknown id
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func requestFromRecord(record *neo4j.Record) *connection.Request {
	return &connection.Request{
		ID:          getStringFromRecord(record, "id"),
		SenderID:    getStringFromRecord(record, "sender_id"),
		RecipientID: getStringFromRecord(record, "recipient_id"),
		Status:      connection.Status(getStringFromRecord(record, "status")),
		CreatedAt:   getTimeFromRecord(record, "created_at"),
		ResolvedAt:  getTimeFromRecord(record, "resolved_at"),
	}
}
