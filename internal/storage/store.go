package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/example/ride-bidding/internal/models"
)

// ErrNotFound is returned when a ride request id is unknown to the store.
var ErrNotFound = errors.New("ride request not found")

// Store is the durable document-store collaborator. The coordinator writes
// through it before any broadcast is sent.
type Store interface {
	GetRide(ctx context.Context, requestID string) (models.RideRequest, error)
	UpsertRide(ctx context.Context, req models.RideRequest) error
	QueryNonTerminal(ctx context.Context) ([]models.RideRequest, error)
	UpsertDriverPresence(ctx context.Context, p models.DriverPresence) error
	Close() error
}

type MemoryStore struct {
	mu       sync.RWMutex
	rides    map[string]models.RideRequest
	presence map[string]models.DriverPresence
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:    make(map[string]models.RideRequest),
		presence: make(map[string]models.DriverPresence),
	}
}

func (m *MemoryStore) GetRide(ctx context.Context, requestID string) (models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[requestID]
	if !ok {
		return models.RideRequest{}, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) UpsertRide(ctx context.Context, req models.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[req.ID] = req.Clone()
	return nil
}

func (m *MemoryStore) QueryNonTerminal(ctx context.Context) ([]models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RideRequest, 0)
	for _, r := range m.rides {
		if !r.Status.Terminal() {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *MemoryStore) UpsertDriverPresence(ctx context.Context, p models.DriverPresence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presence[p.DriverID] = p
	return nil
}

func (m *MemoryStore) Close() error { return nil }
