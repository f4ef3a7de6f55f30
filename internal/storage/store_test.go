package storage

import (
	"context"
	"testing"

	"github.com/example/ride-bidding/internal/models"
)

func TestMemoryStoreIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	req := models.RideRequest{ID: "r-1", Status: models.RideBidding, Bids: []models.Bid{{ID: "b-1", Status: models.BidPending}}}
	if err := s.UpsertRide(ctx, req); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Mutating the caller's copy after the write must not leak in.
	req.Bids[0].Status = models.BidAccepted
	got, err := s.GetRide(ctx, "r-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Bids[0].Status != models.BidPending {
		t.Fatal("store leaked caller mutation")
	}

	// Mutating a read copy must not affect the stored document.
	got.Bids[0].Status = models.BidRejected
	again, _ := s.GetRide(ctx, "r-1")
	if again.Bids[0].Status != models.BidPending {
		t.Fatal("store leaked reader mutation")
	}
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetRide(context.Background(), "ghost"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQueryNonTerminalFiltersTerminal(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.UpsertRide(ctx, models.RideRequest{ID: "r-1", Status: models.RideBidding})
	s.UpsertRide(ctx, models.RideRequest{ID: "r-2", Status: models.RideAccepted})
	s.UpsertRide(ctx, models.RideRequest{ID: "r-3", Status: models.RideCompleted})

	out, err := s.QueryNonTerminal(ctx)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d, want 2", len(out))
	}
	for _, r := range out {
		if r.Status.Terminal() {
			t.Fatalf("terminal ride %s leaked", r.ID)
		}
	}
}
