// Package recovery reconciles the live in-memory index with durable
// storage: a full rehydration at boot and a periodic drift check afterwards.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-bidding/internal/models"
	"github.com/example/ride-bidding/internal/observability"
	"github.com/example/ride-bidding/internal/storage"
)

// Index is the live-state surface the recovery service drives; the
// coordinator implements it.
type Index interface {
	Rehydrate(req models.RideRequest)
	Snapshot() []models.RideRequest
}

// RecoverActiveRequests reloads every non-terminal ride request from
// storage into the live index and returns the count. Callers must treat an
// error as fatal: starting with an empty index would silently drop
// in-flight rides.
func RecoverActiveRequests(ctx context.Context, store storage.Store, idx Index) (int, error) {
	reqs, err := store.QueryNonTerminal(ctx)
	if err != nil {
		return 0, fmt.Errorf("load non-terminal ride requests: %w", err)
	}
	for _, r := range reqs {
		idx.Rehydrate(r)
	}
	observability.RecoveredRides.Set(float64(len(reqs)))
	return len(reqs), nil
}

// Reconciler periodically re-reads a sample of non-terminal requests and
// corrects drift between memory and storage. Between writes the in-memory
// copy is authoritative, so a newer memory copy is written back out; a
// newer durable copy (another writer, a missed write) replaces memory.
type Reconciler struct {
	Store    storage.Store
	Idx      Index
	Interval time.Duration
	Sample   int
	Logger   *slog.Logger
}

// Run blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	if r.Interval <= 0 {
		r.Interval = 30 * time.Second
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce runs one drift pass over up to Sample live requests.
func (r *Reconciler) ReconcileOnce(ctx context.Context) {
	live := r.Idx.Snapshot()
	if r.Sample > 0 && len(live) > r.Sample {
		live = live[:r.Sample]
	}
	for _, mem := range live {
		durable, err := r.Store.GetRide(ctx, mem.ID)
		if err == storage.ErrNotFound {
			// Never observed durably; write the live copy out.
			if err := r.Store.UpsertRide(ctx, mem); err == nil {
				observability.ReconcileDrift.Inc()
			}
			continue
		}
		if err != nil {
			r.Logger.Warn("reconcile_read_failed", "request_id", mem.ID, "error", err)
			continue
		}
		switch {
		case durable.UpdatedAt.After(mem.UpdatedAt):
			r.Idx.Rehydrate(durable)
			observability.ReconcileDrift.Inc()
			r.Logger.Info("reconcile_rehydrated", "request_id", mem.ID)
		case mem.UpdatedAt.After(durable.UpdatedAt):
			if err := r.Store.UpsertRide(ctx, mem); err != nil {
				r.Logger.Warn("reconcile_write_failed", "request_id", mem.ID, "error", err)
				continue
			}
			observability.ReconcileDrift.Inc()
			r.Logger.Info("reconcile_flushed", "request_id", mem.ID)
		}
	}
}
