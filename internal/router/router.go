// Package router translates wire events into coordinator calls and fans the
// results back out to the connections that care.
package router

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/ride-bidding/internal/conn"
	"github.com/example/ride-bidding/internal/eta"
	"github.com/example/ride-bidding/internal/models"
	"github.com/example/ride-bidding/internal/observability"
	"github.com/example/ride-bidding/internal/presence"
	"github.com/example/ride-bidding/internal/protocol"
	"github.com/example/ride-bidding/internal/rank"
	"github.com/example/ride-bidding/internal/ride"
	"github.com/example/ride-bidding/internal/storage"
)

// Sender is the outbound fan-out surface; the dispatch hub implements it.
type Sender interface {
	Send(connID string, msg []byte)
	SendAll(connIDs []string, msg []byte)
}

// Publisher streams lifecycle events to the analytics pipeline.
type Publisher interface {
	PublishRideEvent(event string, req models.RideRequest) error
	PublishPresence(p models.DriverPresence) error
}

type Router struct {
	Conns     *conn.Registry
	Coord     *ride.Coordinator
	Hub       Sender
	Presence  presence.Tracker
	Store     storage.Store
	Estimator *eta.Estimator // optional
	Events    Publisher      // optional
	Logger    *slog.Logger
}

// HandleMessage processes one inbound frame from connID. Rejections go back
// to the sender only; they are never broadcast.
func (rt *Router) HandleMessage(ctx context.Context, connID string, raw []byte) {
	ev, err := protocol.Decode(raw)
	if err != nil {
		observability.MalformedInbound.Inc()
		rt.sendError(connID, err)
		return
	}

	if reg, ok := ev.(protocol.Register); ok {
		rt.handleRegister(ctx, connID, reg)
		return
	}

	// Everything past registration requires a bound identity.
	binding, err := rt.Conns.Binding(connID)
	if err != nil {
		rt.sendError(connID, err)
		return
	}

	switch e := ev.(type) {
	case protocol.RideCreate:
		rt.handleCreate(ctx, connID, binding, e)
	case protocol.BidPlace:
		rt.handleBidPlace(ctx, connID, binding, e)
	case protocol.BidAccept:
		rt.handleBidAccept(ctx, connID, binding, e)
	case protocol.RideCancel:
		rt.handleCancel(ctx, connID, binding, e)
	case protocol.RideComplete:
		rt.handleComplete(ctx, connID, binding, e)
	case protocol.RideProgress:
		rt.handleProgress(ctx, connID, binding, e)
	case protocol.PresenceUpdate:
		rt.handlePresence(ctx, connID, binding, e)
	default:
		rt.sendError(connID, ride.Errf(ride.CodeInvalidInput, "unhandled event"))
	}
}

// HandleDisconnect marks the identity unreachable and, for drivers, flips
// presence to offline. Historical state is kept for reconnection.
func (rt *Router) HandleDisconnect(ctx context.Context, connID string) {
	if binding, err := rt.Conns.Binding(connID); err == nil && binding.Role == conn.RoleDriver {
		p, _ := rt.Presence.SetStatus(binding.Identity, models.DriverOffline)
		rt.persistPresence(ctx, p)
	}
	rt.Conns.Unregister(connID)
}

func (rt *Router) handleRegister(ctx context.Context, connID string, e protocol.Register) {
	binding, err := rt.Conns.Register(connID, conn.Role(e.Role), e.Identity, e.Profile)
	if err != nil {
		rt.sendError(connID, err)
		return
	}
	if binding.Role == conn.RoleDriver {
		p := models.DriverPresence{
			DriverID: binding.Identity,
			Status:   models.DriverAvailable,
			Rating:   e.Profile.Rating,
		}
		rt.Presence.Upsert(p)
		rt.persistPresence(ctx, p)
	}
	// Acknowledged to the caller only.
	rt.Hub.Send(connID, protocol.Encode(protocol.TypeRegistered, protocol.RegisteredEvent{
		Role:     string(binding.Role),
		Identity: binding.Identity,
	}))
}

func (rt *Router) handleCreate(ctx context.Context, connID string, binding *conn.Binding, e protocol.RideCreate) {
	if binding.Role != conn.RoleRider {
		rt.sendError(connID, ride.Errf(ride.CodeForbidden, "only riders create ride requests"))
		return
	}
	var estKm float64
	var estMin int
	if rt.Estimator != nil {
		estKm, estMin = rt.Estimator.Estimate(e.Pickup.Coord, e.Destination.Coord)
	}
	req, err := rt.Coord.Create(ctx, binding.Identity, e.Pickup, e.Destination, estKm, estMin)
	if err != nil {
		rt.sendError(connID, err)
		return
	}
	msg := protocol.Encode(protocol.TypeRideCreated, protocol.RideEvent{Request: req})
	rt.Hub.Send(connID, msg)
	rt.Hub.SendAll(rt.availableDriverConns(), msg)
	rt.publish("created", req)
}

func (rt *Router) handleBidPlace(ctx context.Context, connID string, binding *conn.Binding, e protocol.BidPlace) {
	if binding.Role != conn.RoleDriver {
		rt.sendError(connID, ride.Errf(ride.CodeForbidden, "only drivers place bids"))
		return
	}
	req, _, err := rt.Coord.PlaceBid(ctx, e.RequestID, binding.Identity, e.FareAmount, e.ETAMinutes)
	if err != nil {
		rt.sendError(connID, err)
		return
	}
	// The rider gets a best-value hint; drivers with an open interest see
	// the raw bid set so they know when they are outbid.
	riderMsg := protocol.Encode(protocol.TypeBidUpdated, protocol.RideEvent{
		Request:        req,
		SuggestedBidID: rank.Suggest(req.Bids, rt.Presence),
	})
	if c, ok := rt.Conns.ConnFor(req.RiderID); ok {
		rt.Hub.Send(c, riderMsg)
	}
	rt.Hub.SendAll(rt.biddingDriverConns(req), protocol.Encode(protocol.TypeBidUpdated, protocol.RideEvent{Request: req}))
	rt.publish("bid_placed", req)
}

func (rt *Router) handleBidAccept(ctx context.Context, connID string, binding *conn.Binding, e protocol.BidAccept) {
	req, err := rt.Coord.AcceptBid(ctx, e.RequestID, e.BidID, binding.Identity)
	if err != nil {
		rt.sendError(connID, err)
		return
	}
	rt.notifyParties(req, protocol.TypeRideAccepted)
	// Other drivers prune the request from their available view.
	rt.pruneFromOthers(req, protocol.TypeRideAccepted)
	rt.publish("accepted", req)
}

func (rt *Router) handleCancel(ctx context.Context, connID string, binding *conn.Binding, e protocol.RideCancel) {
	req, err := rt.Coord.Cancel(ctx, e.RequestID, binding.Identity, e.Reason)
	if err != nil {
		rt.sendError(connID, err)
		return
	}
	rt.notifyParties(req, protocol.TypeRideCancelled)
	rt.Hub.SendAll(rt.biddingDriverConns(req), protocol.Encode(protocol.TypeRideCancelled, protocol.RideEvent{Request: req}))
	rt.pruneFromOthers(req, protocol.TypeRideCancelled)
	rt.publish("cancelled", req)
}

func (rt *Router) handleComplete(ctx context.Context, connID string, binding *conn.Binding, e protocol.RideComplete) {
	req, err := rt.Coord.Complete(ctx, e.RequestID, binding.Identity)
	if err != nil {
		rt.sendError(connID, err)
		return
	}
	rt.notifyParties(req, protocol.TypeRideCompleted)
	rt.publish("completed", req)
}

func (rt *Router) handleProgress(ctx context.Context, connID string, binding *conn.Binding, e protocol.RideProgress) {
	req, err := rt.Coord.Progress(ctx, e.RequestID, binding.Identity)
	if err != nil {
		rt.sendError(connID, err)
		return
	}
	rt.notifyParties(req, protocol.TypeRideInProgress)
	rt.publish("in_progress", req)
}

func (rt *Router) handlePresence(ctx context.Context, connID string, binding *conn.Binding, e protocol.PresenceUpdate) {
	if binding.Role != conn.RoleDriver {
		rt.sendError(connID, ride.Errf(ride.CodeForbidden, "only drivers update presence"))
		return
	}
	st := models.PresenceStatus(e.Status)
	switch st {
	case models.DriverAvailable, models.DriverBusy, models.DriverOffline:
	default:
		rt.sendError(connID, ride.Errf(ride.CodeInvalidInput, "unknown presence status %q", e.Status))
		return
	}
	cur, _ := rt.Presence.Get(binding.Identity)
	p := models.DriverPresence{
		DriverID: binding.Identity,
		Status:   st,
		Loc:      e.Location,
		Rating:   cur.Rating,
	}
	rt.Presence.Upsert(p)
	rt.persistPresence(ctx, p)
	rt.Hub.Send(connID, protocol.Encode(protocol.TypePresenceChanged, protocol.PresenceEvent{Presence: p}))
}

// notifyParties sends an event to both parties bound to the ride.
func (rt *Router) notifyParties(req models.RideRequest, eventType string) {
	msg := protocol.Encode(eventType, protocol.RideEvent{Request: req})
	if c, ok := rt.Conns.ConnFor(req.RiderID); ok {
		rt.Hub.Send(c, msg)
	}
	if req.Driver != nil {
		if c, ok := rt.Conns.ConnFor(req.Driver.DriverID); ok {
			rt.Hub.Send(c, msg)
		}
	}
}

// pruneFromOthers tells every other reachable available driver to drop the
// request from its open-requests view.
func (rt *Router) pruneFromOthers(req models.RideRequest, eventType string) {
	msg := protocol.Encode(eventType, protocol.RideEvent{Request: req, RecipientPruned: true})
	exclude := ""
	if req.Driver != nil {
		exclude = req.Driver.DriverID
	}
	conns := make([]string, 0)
	for _, p := range rt.Presence.Available() {
		if p.DriverID == exclude {
			continue
		}
		if c, ok := rt.Conns.ConnFor(p.DriverID); ok {
			conns = append(conns, c)
		}
	}
	rt.Hub.SendAll(conns, msg)
}

func (rt *Router) availableDriverConns() []string {
	out := make([]string, 0)
	for _, p := range rt.Presence.Available() {
		if c, ok := rt.Conns.ConnFor(p.DriverID); ok {
			out = append(out, c)
		}
	}
	return out
}

func (rt *Router) biddingDriverConns(req models.RideRequest) []string {
	out := make([]string, 0, len(req.Bids))
	for _, b := range req.Bids {
		if c, ok := rt.Conns.ConnFor(b.DriverID); ok {
			out = append(out, c)
		}
	}
	return out
}

func (rt *Router) persistPresence(ctx context.Context, p models.DriverPresence) {
	if rt.Store != nil {
		if err := rt.Store.UpsertDriverPresence(ctx, p); err != nil {
			rt.Logger.Warn("presence_persist_failed", "driver_id", p.DriverID, "error", err)
		}
	}
	if rt.Events != nil {
		go func() {
			if err := rt.Events.PublishPresence(p); err != nil {
				rt.Logger.Debug("presence_publish_failed", "driver_id", p.DriverID, "error", err)
			}
		}()
	}
}

// publish streams the lifecycle event off the read loop; a stalled broker
// must never back-pressure a client's event handling.
func (rt *Router) publish(event string, req models.RideRequest) {
	if rt.Events == nil {
		return
	}
	go func() {
		if err := rt.Events.PublishRideEvent(event, req); err != nil {
			rt.Logger.Debug("ride_event_publish_failed", "request_id", req.ID, "error", err)
		}
	}()
}

func (rt *Router) sendError(connID string, err error) {
	ev := protocol.ErrorEvent{Code: string(ride.CodeOf(err)), Message: err.Error(), Retryable: ride.IsRetryable(err)}
	var mal *protocol.MalformedError
	if errors.As(err, &mal) {
		ev.Code = string(ride.CodeInvalidInput)
		ev.Message = mal.Error()
	}
	rt.Hub.Send(connID, protocol.Encode(protocol.TypeError, ev))
}
