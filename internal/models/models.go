package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location is a human-readable address plus coordinates.
type Location struct {
	Address string `json:"address"`
	Coord   Coord  `json:"coord"`
}

type RideStatus string

const (
	RidePending    RideStatus = "pending"
	RideBidding    RideStatus = "bidding"
	RideAccepted   RideStatus = "accepted"
	RideInProgress RideStatus = "in_progress"
	RideCompleted  RideStatus = "completed"
	RideCancelled  RideStatus = "cancelled"
)

// Terminal reports whether no further transitions are permitted.
func (s RideStatus) Terminal() bool {
	return s == RideCompleted || s == RideCancelled
}

type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

type Bid struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	DriverID   string    `json:"driver_id"`
	FareAmount float64   `json:"fare_amount"`
	ETAMinutes int       `json:"eta_minutes"`
	Status     BidStatus `json:"status"`
	PlacedAt   time.Time `json:"placed_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DriverInfo is the denormalized snapshot recorded on acceptance so the
// rider keeps driver details even if the driver disconnects afterwards.
type DriverInfo struct {
	DriverID string  `json:"driver_id"`
	Name     string  `json:"name,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
	Vehicle  string  `json:"vehicle,omitempty"`
	Phone    string  `json:"phone,omitempty"`
}

type RideRequest struct {
	ID          string     `json:"id"`
	RiderID     string     `json:"rider_id"`
	Pickup      Location   `json:"pickup"`
	Destination Location   `json:"destination"`
	Status      RideStatus `json:"status"`

	// Bids in arrival order. Ordering here is display stability only;
	// ranking is a presentation concern.
	Bids []Bid `json:"bids"`

	AcceptedBidID string      `json:"accepted_bid_id,omitempty"`
	Driver        *DriverInfo `json:"driver,omitempty"`

	EstimateKm      float64 `json:"estimate_km,omitempty"`
	EstimateMinutes int     `json:"estimate_minutes,omitempty"`

	PaymentIntentID string `json:"payment_intent_id,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
}

// BidByID returns the index of the bid with the given id, or -1.
func (r *RideRequest) BidByID(bidID string) int {
	for i := range r.Bids {
		if r.Bids[i].ID == bidID {
			return i
		}
	}
	return -1
}

// BidByDriver returns the index of the driver's bid, or -1.
func (r *RideRequest) BidByDriver(driverID string) int {
	for i := range r.Bids {
		if r.Bids[i].DriverID == driverID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can hand snapshots outside the
// coordinator's critical section.
func (r *RideRequest) Clone() RideRequest {
	cp := *r
	cp.Bids = make([]Bid, len(r.Bids))
	copy(cp.Bids, r.Bids)
	if r.Driver != nil {
		d := *r.Driver
		cp.Driver = &d
	}
	return cp
}

type PresenceStatus string

const (
	DriverAvailable PresenceStatus = "available"
	DriverBusy      PresenceStatus = "busy"
	DriverOffline   PresenceStatus = "offline"
)

type DriverPresence struct {
	DriverID string         `json:"driver_id"`
	Status   PresenceStatus `json:"status"`
	Loc      Coord          `json:"loc"`
	Rating   float64        `json:"rating,omitempty"`
	Updated  time.Time      `json:"updated"`
}
