package ride

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-bidding/internal/models"
	"github.com/example/ride-bidding/internal/observability"
	"github.com/example/ride-bidding/internal/presence"
	"github.com/example/ride-bidding/internal/storage"
)

// ProfileSource supplies the denormalized driver snapshot recorded on
// acceptance. The connection registry implements it.
type ProfileSource interface {
	Profile(identity string) (models.DriverInfo, bool)
}

// Payments is the optional hold/capture/cancel collaborator bound to the
// ride lifecycle. A nil Payments disables the integration.
type Payments interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, paymentIntentID string) error
	Cancel(ctx context.Context, paymentIntentID string) error
}

// Coordinator owns the canonical state of every active ride request: the
// state machine and the bid registry share one per-request critical section
// so an accept and a late bid can never interleave. Storage is written
// before any caller sees the new state.
type Coordinator struct {
	store    storage.Store
	presence presence.Tracker
	profiles ProfileSource
	payments Payments
	logger   *slog.Logger

	WriteTimeout  time.Duration
	WriteAttempts int
	RetryDelay    time.Duration

	mu     sync.RWMutex
	active map[string]*entry
}

// entry serializes all mutations for one request id. Unrelated rides never
// contend on each other's locks.
type entry struct {
	mu  sync.Mutex
	req models.RideRequest
}

func NewCoordinator(store storage.Store, tracker presence.Tracker, profiles ProfileSource, payments Payments, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:         store,
		presence:      tracker,
		profiles:      profiles,
		payments:      payments,
		logger:        logger,
		WriteTimeout:  2 * time.Second,
		WriteAttempts: 3,
		RetryDelay:    100 * time.Millisecond,
		active:        make(map[string]*entry),
	}
}

// Create opens a new request directly in the bidding state, persists it,
// and only then makes it visible to the live index.
func (c *Coordinator) Create(ctx context.Context, riderID string, pickup, destination models.Location, estKm float64, estMinutes int) (models.RideRequest, error) {
	if riderID == "" {
		return models.RideRequest{}, Errf(CodeInvalidInput, "rider identity is required")
	}
	if pickup.Address == "" || destination.Address == "" {
		return models.RideRequest{}, Errf(CodeInvalidInput, "pickup and destination are required")
	}
	now := time.Now()
	req := models.RideRequest{
		ID:              newID(),
		RiderID:         riderID,
		Pickup:          pickup,
		Destination:     destination,
		Status:          models.RideBidding,
		EstimateKm:      estKm,
		EstimateMinutes: estMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.persist(ctx, req); err != nil {
		return models.RideRequest{}, err
	}
	c.mu.Lock()
	c.active[req.ID] = &entry{req: req}
	c.mu.Unlock()
	observability.RidesCreated.Inc()
	c.logger.Info("ride_created", "request_id", req.ID, "rider_id", riderID)
	return req.Clone(), nil
}

// PlaceBid appends a driver's offer while the window is open. A second bid
// from the same driver replaces the prior amount in place.
func (c *Coordinator) PlaceBid(ctx context.Context, requestID, driverID string, fareAmount float64, etaMinutes int) (models.RideRequest, models.Bid, error) {
	if fareAmount <= 0 {
		return models.RideRequest{}, models.Bid{}, Errf(CodeInvalidInput, "fare amount must be positive")
	}
	e, err := c.lookup(ctx, requestID)
	if err != nil {
		return models.RideRequest{}, models.Bid{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.req.Status != models.RideBidding {
		return models.RideRequest{}, models.Bid{}, Errf(CodeInvalidState, "bidding is closed for request %s", requestID)
	}

	next := e.req.Clone()
	now := time.Now()
	var bid models.Bid
	if i := next.BidByDriver(driverID); i >= 0 {
		next.Bids[i].FareAmount = fareAmount
		next.Bids[i].ETAMinutes = etaMinutes
		next.Bids[i].UpdatedAt = now
		bid = next.Bids[i]
	} else {
		bid = models.Bid{
			ID:         newID(),
			RequestID:  requestID,
			DriverID:   driverID,
			FareAmount: fareAmount,
			ETAMinutes: etaMinutes,
			Status:     models.BidPending,
			PlacedAt:   now,
			UpdatedAt:  now,
		}
		next.Bids = append(next.Bids, bid)
	}
	next.UpdatedAt = now

	if err := c.persist(ctx, next); err != nil {
		return models.RideRequest{}, models.Bid{}, err
	}
	e.req = next
	observability.BidsPlaced.Inc()
	return next.Clone(), bid, nil
}

// AcceptBid binds exactly one driver to the ride. The winning bid moves to
// accepted and every other pending bid is rejected in the same atomic unit;
// a racing accept on the same request observes the closed window and fails
// with invalid_state.
func (c *Coordinator) AcceptBid(ctx context.Context, requestID, bidID, requesterID string) (models.RideRequest, error) {
	e, err := c.lookup(ctx, requestID)
	if err != nil {
		return models.RideRequest{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.req.RiderID != requesterID {
		return models.RideRequest{}, Errf(CodeForbidden, "only the requesting rider may accept a bid")
	}
	if e.req.Status != models.RideBidding {
		observability.AcceptConflicts.Inc()
		return models.RideRequest{}, Errf(CodeInvalidState, "request %s is %s, not open for acceptance", requestID, e.req.Status)
	}
	idx := e.req.BidByID(bidID)
	if idx < 0 {
		return models.RideRequest{}, Errf(CodeBidNotFound, "bid %s does not belong to request %s", bidID, requestID)
	}

	next := e.req.Clone()
	now := time.Now()
	for i := range next.Bids {
		if i == idx {
			next.Bids[i].Status = models.BidAccepted
		} else if next.Bids[i].Status == models.BidPending {
			next.Bids[i].Status = models.BidRejected
		}
		next.Bids[i].UpdatedAt = now
	}
	winner := next.Bids[idx]
	next.Status = models.RideAccepted
	next.AcceptedBidID = winner.ID
	next.AcceptedAt = &now
	next.UpdatedAt = now
	next.Driver = c.driverSnapshot(winner.DriverID)

	if c.payments != nil {
		id, err := c.payments.Hold(ctx, toMinorUnits(winner.FareAmount), "inr", "")
		if err != nil {
			c.logger.Warn("payment_hold_failed", "request_id", requestID, "error", err)
		} else {
			next.PaymentIntentID = id
		}
	}

	if err := c.persist(ctx, next); err != nil {
		return models.RideRequest{}, err
	}
	e.req = next
	c.setDriverStatus(ctx, winner.DriverID, models.DriverBusy)
	observability.BidsAccepted.Inc()
	c.logger.Info("bid_accepted", "request_id", requestID, "bid_id", bidID, "driver_id", winner.DriverID)
	return next.Clone(), nil
}

// Progress moves an accepted ride to in-progress when the driver picks the
// rider up. Only the bound driver may report it.
func (c *Coordinator) Progress(ctx context.Context, requestID, requesterID string) (models.RideRequest, error) {
	e, err := c.lookup(ctx, requestID)
	if err != nil {
		return models.RideRequest{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.req.Status != models.RideAccepted {
		return models.RideRequest{}, Errf(CodeInvalidState, "request %s is %s", requestID, e.req.Status)
	}
	if d := e.req.Driver; d == nil || d.DriverID != requesterID {
		return models.RideRequest{}, Errf(CodeForbidden, "only the accepted driver may start the ride")
	}
	next := e.req.Clone()
	next.Status = models.RideInProgress
	next.UpdatedAt = time.Now()
	if err := c.persist(ctx, next); err != nil {
		return models.RideRequest{}, err
	}
	e.req = next
	return next.Clone(), nil
}

// Complete finishes an accepted or in-progress ride and releases the
// driver back to the available pool. Either party bound to the ride may
// report completion.
func (c *Coordinator) Complete(ctx context.Context, requestID, requesterID string) (models.RideRequest, error) {
	e, err := c.lookup(ctx, requestID)
	if err != nil {
		return models.RideRequest{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if requesterID != e.req.RiderID && (e.req.Driver == nil || e.req.Driver.DriverID != requesterID) {
		return models.RideRequest{}, Errf(CodeForbidden, "only the rider or the accepted driver may complete the ride")
	}
	if e.req.Status != models.RideAccepted && e.req.Status != models.RideInProgress {
		return models.RideRequest{}, Errf(CodeInvalidState, "request %s is %s, cannot complete", requestID, e.req.Status)
	}
	next := e.req.Clone()
	now := time.Now()
	next.Status = models.RideCompleted
	next.CompletedAt = &now
	next.UpdatedAt = now
	if err := c.persist(ctx, next); err != nil {
		return models.RideRequest{}, err
	}
	e.req = next
	if next.Driver != nil {
		c.setDriverStatus(ctx, next.Driver.DriverID, models.DriverAvailable)
	}
	if c.payments != nil && next.PaymentIntentID != "" {
		if err := c.payments.Capture(ctx, next.PaymentIntentID); err != nil {
			c.logger.Warn("payment_capture_failed", "request_id", requestID, "error", err)
		}
	}
	c.retire(requestID)
	observability.RidesCompleted.Inc()
	return next.Clone(), nil
}

// Cancel terminates a non-terminal request. Bids that were still pending
// stay pending for the audit trail; only an acceptance rejects losers.
func (c *Coordinator) Cancel(ctx context.Context, requestID, requesterID, reason string) (models.RideRequest, error) {
	e, err := c.lookup(ctx, requestID)
	if err != nil {
		return models.RideRequest{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.req.RiderID != requesterID {
		return models.RideRequest{}, Errf(CodeForbidden, "only the requesting rider may cancel")
	}
	if e.req.Status.Terminal() {
		return models.RideRequest{}, Errf(CodeInvalidState, "request %s is already %s", requestID, e.req.Status)
	}
	next := e.req.Clone()
	now := time.Now()
	next.Status = models.RideCancelled
	next.CancelledAt = &now
	next.CancelReason = reason
	next.UpdatedAt = now
	if err := c.persist(ctx, next); err != nil {
		return models.RideRequest{}, err
	}
	e.req = next
	if next.Driver != nil {
		c.setDriverStatus(ctx, next.Driver.DriverID, models.DriverAvailable)
	}
	if c.payments != nil && next.PaymentIntentID != "" {
		if err := c.payments.Cancel(ctx, next.PaymentIntentID); err != nil {
			c.logger.Warn("payment_release_failed", "request_id", requestID, "error", err)
		}
	}
	c.retire(requestID)
	observability.RidesCancelled.Inc()
	return next.Clone(), nil
}

// Get returns a snapshot of an active request.
func (c *Coordinator) Get(ctx context.Context, requestID string) (models.RideRequest, error) {
	e, err := c.lookup(ctx, requestID)
	if err != nil {
		return models.RideRequest{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req.Clone(), nil
}

// Rehydrate loads a request recovered from durable storage into the live
// index, replacing any in-memory copy. Storage wins at boot.
func (c *Coordinator) Rehydrate(req models.RideRequest) {
	if req.Status.Terminal() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.active[req.ID]; ok {
		e.mu.Lock()
		e.req = req.Clone()
		e.mu.Unlock()
		return
	}
	c.active[req.ID] = &entry{req: req.Clone()}
}

// Snapshot returns copies of every active request, for reconciliation.
func (c *Coordinator) Snapshot() []models.RideRequest {
	c.mu.RLock()
	entries := make([]*entry, 0, len(c.active))
	for _, e := range c.active {
		entries = append(entries, e)
	}
	c.mu.RUnlock()
	out := make([]models.RideRequest, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.req.Clone())
		e.mu.Unlock()
	}
	return out
}

// ActiveCount reports the number of tracked non-terminal requests.
func (c *Coordinator) ActiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.active)
}

func (c *Coordinator) lookup(ctx context.Context, requestID string) (*entry, error) {
	c.mu.RLock()
	e, ok := c.active[requestID]
	c.mu.RUnlock()
	if ok {
		return e, nil
	}
	// Terminal requests leave the live index but stay archived; surface
	// them as a closed state rather than an unknown id.
	if r, err := c.store.GetRide(ctx, requestID); err == nil {
		return nil, Errf(CodeInvalidState, "request %s is already %s", requestID, r.Status)
	}
	return nil, Errf(CodeNotFound, "unknown request %s", requestID)
}

func (c *Coordinator) retire(requestID string) {
	// Terminal requests leave the live index; storage keeps the archive.
	c.mu.Lock()
	delete(c.active, requestID)
	c.mu.Unlock()
}

// persist writes through to storage with bounded retry and a per-attempt
// timeout. The caller only commits its in-memory copy after persist
// succeeds, so a final failure leaves state untouched.
func (c *Coordinator) persist(ctx context.Context, req models.RideRequest) error {
	delay := c.RetryDelay
	var lastErr error
	for i := 0; i < c.WriteAttempts; i++ {
		wctx, cancel := context.WithTimeout(ctx, c.WriteTimeout)
		lastErr = c.store.UpsertRide(wctx, req)
		cancel()
		if lastErr == nil {
			return nil
		}
		if i < c.WriteAttempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	observability.StorageErrors.Inc()
	c.logger.Error("persist_failed", "request_id", req.ID, "error", lastErr)
	return &Error{Code: CodeStorageUnavailable, Message: "could not persist ride request", Retryable: true}
}

func (c *Coordinator) driverSnapshot(driverID string) *models.DriverInfo {
	info := models.DriverInfo{DriverID: driverID}
	if c.profiles != nil {
		if p, ok := c.profiles.Profile(driverID); ok {
			p.DriverID = driverID
			info = p
		}
	}
	if c.presence != nil {
		if p, ok := c.presence.Get(driverID); ok && info.Rating == 0 {
			info.Rating = p.Rating
		}
	}
	return &info
}

func (c *Coordinator) setDriverStatus(ctx context.Context, driverID string, st models.PresenceStatus) {
	if c.presence == nil {
		return
	}
	p, _ := c.presence.SetStatus(driverID, st)
	if err := c.store.UpsertDriverPresence(ctx, p); err != nil {
		c.logger.Warn("presence_persist_failed", "driver_id", driverID, "error", err)
	}
}

func toMinorUnits(amount float64) int64 {
	return int64(amount*100 + 0.5)
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
