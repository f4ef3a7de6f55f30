package conn

import (
	"sync"
	"time"

	"github.com/example/ride-bidding/internal/models"
	"github.com/example/ride-bidding/internal/ride"
)

type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// Binding ties a live connection to exactly one rider or driver identity.
type Binding struct {
	ConnID   string
	Role     Role
	Identity string
	Profile  models.DriverInfo // drivers only; snapshot used on acceptance
	BoundAt  time.Time
}

// Registry is the first line of defense: events from connections without a
// binding never reach the coordinator.
type Registry struct {
	mu         sync.RWMutex
	byConn     map[string]*Binding
	byIdentity map[string]*Binding // last binding per identity, kept across disconnects
	reachable  map[string]string   // identity -> connID of the live connection
}

func NewRegistry() *Registry {
	return &Registry{
		byConn:     make(map[string]*Binding),
		byIdentity: make(map[string]*Binding),
		reachable:  make(map[string]string),
	}
}

// Register binds connID to identity. A connection already bound to a
// different identity is rejected; re-registering the same identity on the
// same connection is a no-op so clients can safely retry.
func (r *Registry) Register(connID string, role Role, identity string, profile models.DriverInfo) (*Binding, error) {
	if identity == "" {
		return nil, ride.Errf(ride.CodeInvalidInput, "identity is required")
	}
	if role != RoleRider && role != RoleDriver {
		return nil, ride.Errf(ride.CodeInvalidInput, "unknown role %q", role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byConn[connID]; ok {
		if b.Identity == identity && b.Role == role {
			return b, nil
		}
		return nil, ride.Errf(ride.CodeAlreadyRegistered, "connection already bound to %s", b.Identity)
	}
	b := &Binding{ConnID: connID, Role: role, Identity: identity, Profile: profile, BoundAt: time.Now()}
	r.byConn[connID] = b
	r.byIdentity[identity] = b
	r.reachable[identity] = connID
	return b, nil
}

// Unregister marks the bound identity unreachable. The identity's last
// binding stays indexed so the driver snapshot survives a disconnect.
// Unknown connections are a no-op so disconnect handlers stay idempotent.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	// A reconnect may already have rebound the identity to a newer conn.
	if r.reachable[b.Identity] == connID {
		delete(r.reachable, b.Identity)
	}
}

// Binding returns the binding for a connection, or a NotRegistered error.
func (r *Registry) Binding(connID string) (*Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byConn[connID]
	if !ok {
		return nil, ride.Errf(ride.CodeNotRegistered, "connection is not registered")
	}
	return b, nil
}

// IsReachable reports whether the identity has a live connection.
func (r *Registry) IsReachable(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.reachable[identity]
	return ok
}

// ConnFor returns the live connection id for an identity.
func (r *Registry) ConnFor(identity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.reachable[identity]
	return id, ok
}

// Profile returns the driver profile captured at the identity's most recent
// registration, whether or not the connection is still live. A bid accepted
// after the driver drops still gets the denormalized snapshot.
func (r *Registry) Profile(identity string) (models.DriverInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byIdentity[identity]
	if !ok {
		return models.DriverInfo{}, false
	}
	return b.Profile, true
}
