package recovery

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/example/ride-bidding/internal/models"
	"github.com/example/ride-bidding/internal/storage"
)

type fakeIndex struct {
	byID map[string]models.RideRequest
}

func newFakeIndex() *fakeIndex { return &fakeIndex{byID: make(map[string]models.RideRequest)} }

func (f *fakeIndex) Rehydrate(req models.RideRequest) { f.byID[req.ID] = req }

func (f *fakeIndex) Snapshot() []models.RideRequest {
	out := make([]models.RideRequest, 0, len(f.byID))
	for _, r := range f.byID {
		out = append(out, r)
	}
	return out
}

type failingStore struct{ storage.Store }

func (f *failingStore) QueryNonTerminal(ctx context.Context) ([]models.RideRequest, error) {
	return nil, errors.New("connection refused")
}

func TestRecoverActiveRequestsSkipsTerminal(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.UpsertRide(ctx, models.RideRequest{ID: "r-1", Status: models.RideBidding, Bids: []models.Bid{{ID: "b-1", DriverID: "d1", Status: models.BidPending}}})
	store.UpsertRide(ctx, models.RideRequest{ID: "r-2", Status: models.RideAccepted, AcceptedBidID: "b-9"})
	store.UpsertRide(ctx, models.RideRequest{ID: "r-3", Status: models.RideCompleted})
	store.UpsertRide(ctx, models.RideRequest{ID: "r-4", Status: models.RideCancelled})

	idx := newFakeIndex()
	n, err := RecoverActiveRequests(ctx, store, idx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 2 {
		t.Fatalf("recovered %d, want 2", n)
	}
	got, ok := idx.byID["r-1"]
	if !ok || len(got.Bids) != 1 || got.Bids[0].ID != "b-1" {
		t.Fatalf("r-1 not rehydrated with bids: %+v", got)
	}
	if acc := idx.byID["r-2"]; acc.AcceptedBidID != "b-9" {
		t.Fatalf("r-2 lost accepted bid: %+v", acc)
	}
	if _, ok := idx.byID["r-3"]; ok {
		t.Fatal("terminal ride must not be rehydrated")
	}
}

func TestRecoverActiveRequestsFailsClosed(t *testing.T) {
	_, err := RecoverActiveRequests(context.Background(), &failingStore{}, newFakeIndex())
	if err == nil {
		t.Fatal("expected error when storage is unreachable")
	}
}

func TestReconcileOnceRehydratesNewerDurableCopy(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	idx := newFakeIndex()
	now := time.Now()

	idx.Rehydrate(models.RideRequest{ID: "r-1", Status: models.RideBidding, UpdatedAt: now.Add(-time.Minute)})
	store.UpsertRide(ctx, models.RideRequest{ID: "r-1", Status: models.RideAccepted, AcceptedBidID: "b-1", UpdatedAt: now})

	rec := &Reconciler{Store: store, Idx: idx, Logger: slog.Default()}
	rec.ReconcileOnce(ctx)

	if got := idx.byID["r-1"]; got.Status != models.RideAccepted || got.AcceptedBidID != "b-1" {
		t.Fatalf("durable copy should win: %+v", got)
	}
}

func TestReconcileOnceFlushesNewerMemoryCopy(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	idx := newFakeIndex()
	now := time.Now()

	store.UpsertRide(ctx, models.RideRequest{ID: "r-1", Status: models.RideBidding, UpdatedAt: now.Add(-time.Minute)})
	idx.Rehydrate(models.RideRequest{ID: "r-1", Status: models.RideBidding, Bids: []models.Bid{{ID: "b-1"}}, UpdatedAt: now})

	rec := &Reconciler{Store: store, Idx: idx, Logger: slog.Default()}
	rec.ReconcileOnce(ctx)

	got, err := store.GetRide(ctx, "r-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Bids) != 1 {
		t.Fatalf("memory copy should be flushed out: %+v", got)
	}
}

func TestReconcileOnceWritesUnseenRequest(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	idx := newFakeIndex()
	idx.Rehydrate(models.RideRequest{ID: "r-lost", Status: models.RideBidding, UpdatedAt: time.Now()})

	rec := &Reconciler{Store: store, Idx: idx, Logger: slog.Default()}
	rec.ReconcileOnce(ctx)

	if _, err := store.GetRide(ctx, "r-lost"); err != nil {
		t.Fatalf("live copy should be written out: %v", err)
	}
}
