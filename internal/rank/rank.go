// Package rank computes a display hint for the rider: which pending bid
// looks like the best value. It is presentation-only; the bid registry's
// ordering guarantee stays insertion order.
package rank

import (
	"github.com/example/ride-bidding/internal/models"
)

// RatingSource provides driver ratings; the presence tracker implements it.
type RatingSource interface {
	Get(driverID string) (models.DriverPresence, bool)
}

// Suggest returns the id of the pending bid with the lowest cost, where
// cost = fare + weight*(5 - rating). Empty when no pending bids exist.
func Suggest(bids []models.Bid, ratings RatingSource) string {
	const ratingWeight = 10.0
	bestID := ""
	bestCost := 0.0
	for _, b := range bids {
		if b.Status != models.BidPending {
			continue
		}
		rating := 0.0
		if ratings != nil {
			if p, ok := ratings.Get(b.DriverID); ok {
				rating = p.Rating
			}
		}
		cost := b.FareAmount + ratingWeight*(5.0-rating)
		if bestID == "" || cost < bestCost {
			bestID = b.ID
			bestCost = cost
		}
	}
	return bestID
}
