package connection

import (
	"context"
	"sync"
	"time"
)

// Store persists connection requests. Implementations must make Create
// atomic with respect to the one-pending-per-pair rule and must make
// CompareAndSwapStatus an atomic check-and-set, so that exactly one of any
// set of racing transitions wins.
type Store interface {
	// Create persists a new pending request. Returns ErrDuplicateRequest if a
	// pending or accepted request already exists for the pair or its reverse.
	Create(ctx context.Context, req *Request) error

	// Get returns a request by id, or ErrRequestNotFound.
	Get(ctx context.Context, id string) (*Request, error)

	// CompareAndSwapStatus transitions the request from an expected status to
	// a new one. Returns false (and no error) when the observed status did
	// not match, i.e. the caller lost the race.
	CompareAndSwapStatus(ctx context.Context, id string, from, to Status, resolvedAt time.Time) (bool, error)
}

// MemoryStore is an in-process Store guarded by a mutex. It backs tests and
// single-node deployments; the graph package provides the durable variant.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]*Request
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*Request)}
}

// Create persists a pending request, enforcing the pair-uniqueness rule
// atomically under the store lock
func (s *MemoryStore) Create(ctx context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.requests {
		// Pending requests block the pair in both directions; an accepted
		// request means the pair is already connected. Declined and withdrawn
		// requests allow a fresh attempt.
		if existing.Status != StatusPending && existing.Status != StatusAccepted {
			continue
		}
		if existing.SenderID == req.SenderID && existing.RecipientID == req.RecipientID {
			return ErrDuplicateRequest{Existing: copyRequest(existing)}
		}
		if existing.SenderID == req.RecipientID && existing.RecipientID == req.SenderID {
			return ErrDuplicateRequest{
				Existing: copyRequest(existing),
				Reverse:  existing.Status == StatusPending,
			}
		}
	}

	s.requests[req.ID] = copyRequest(req)
	return nil
}

// Get returns a copy of the request by id
func (s *MemoryStore) Get(ctx context.Context, id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, ErrRequestNotFound{RequestID: id}
	}
	return copyRequest(req), nil
}

// CompareAndSwapStatus atomically transitions the request if its status
// matches the guard
func (s *MemoryStore) CompareAndSwapStatus(ctx context.Context, id string, from, to Status, resolvedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return false, ErrRequestNotFound{RequestID: id}
	}
	if req.Status != from {
		return false, nil
	}
	req.Status = to
	if to.Terminal() {
		req.ResolvedAt = resolvedAt
	}
	return true, nil
}

func copyRequest(req *Request) *Request {
	c := *req
	return &c
}
