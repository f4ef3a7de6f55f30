package rank

import (
	"testing"

	"github.com/example/ride-bidding/internal/models"
)

type fakeRatings map[string]float64

func (f fakeRatings) Get(driverID string) (models.DriverPresence, bool) {
	r, ok := f[driverID]
	return models.DriverPresence{DriverID: driverID, Rating: r}, ok
}

func TestSuggestPrefersCheapestBid(t *testing.T) {
	bids := []models.Bid{
		{ID: "b-1", DriverID: "d1", FareAmount: 120, Status: models.BidPending},
		{ID: "b-2", DriverID: "d2", FareAmount: 100, Status: models.BidPending},
	}
	ratings := fakeRatings{"d1": 4.5, "d2": 4.5}
	if got := Suggest(bids, ratings); got != "b-2" {
		t.Fatalf("got %s, want b-2", got)
	}
}

func TestSuggestWeighsRating(t *testing.T) {
	// d1 asks 15 more but is a full star better; weight 10/star makes the
	// pricier bid the better value.
	bids := []models.Bid{
		{ID: "b-1", DriverID: "d1", FareAmount: 115, Status: models.BidPending},
		{ID: "b-2", DriverID: "d2", FareAmount: 100, Status: models.BidPending},
	}
	ratings := fakeRatings{"d1": 5.0, "d2": 3.0}
	if got := Suggest(bids, ratings); got != "b-1" {
		t.Fatalf("got %s, want b-1", got)
	}
}

func TestSuggestIgnoresNonPendingBids(t *testing.T) {
	bids := []models.Bid{
		{ID: "b-1", DriverID: "d1", FareAmount: 50, Status: models.BidRejected},
		{ID: "b-2", DriverID: "d2", FareAmount: 200, Status: models.BidPending},
	}
	if got := Suggest(bids, nil); got != "b-2" {
		t.Fatalf("got %s, want b-2", got)
	}
}

func TestSuggestEmptyWhenNoPendingBids(t *testing.T) {
	if got := Suggest(nil, nil); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
	bids := []models.Bid{{ID: "b-1", Status: models.BidRejected}}
	if got := Suggest(bids, nil); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
