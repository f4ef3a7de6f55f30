// Package protocol defines the closed set of wire events exchanged with
// clients. Every inbound payload is shape-validated here before any domain
// component sees it.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/example/ride-bidding/internal/models"
)

// Inbound event names.
const (
	TypeRegister       = "connection.register"
	TypeRideCreate     = "ride.create"
	TypeBidPlace       = "ride.bid.place"
	TypeBidAccept      = "ride.bid.accept"
	TypeRideCancel     = "ride.cancel"
	TypeRideComplete   = "ride.complete"
	TypeRideProgress   = "ride.progress"
	TypePresenceUpdate = "driver.presence.update"
)

// Outbound event names.
const (
	TypeRegistered      = "connection.registered"
	TypeRideCreated     = "ride.created"
	TypeBidUpdated      = "ride.bid.updated"
	TypeRideAccepted    = "ride.accepted"
	TypeRideInProgress  = "ride.in_progress"
	TypeRideCancelled   = "ride.cancelled"
	TypeRideCompleted   = "ride.completed"
	TypePresenceChanged = "driver.presence.changed"
	TypeError           = "error"
)

// Envelope is the wire frame: a tag plus a raw payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Register struct {
	Role     string            `json:"role"`
	Identity string            `json:"identity"`
	Profile  models.DriverInfo `json:"profile,omitempty"`
}

type RideCreate struct {
	Pickup      models.Location `json:"pickup"`
	Destination models.Location `json:"destination"`
}

type BidPlace struct {
	RequestID  string  `json:"request_id"`
	FareAmount float64 `json:"fare_amount"`
	ETAMinutes int     `json:"eta_minutes"`
}

type BidAccept struct {
	RequestID string `json:"request_id"`
	BidID     string `json:"bid_id"`
}

type RideCancel struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason,omitempty"`
}

type RideComplete struct {
	RequestID string `json:"request_id"`
}

type RideProgress struct {
	RequestID string `json:"request_id"`
}

type PresenceUpdate struct {
	Status   string       `json:"status"`
	Location models.Coord `json:"location"`
}

// MalformedError marks payloads rejected at the protocol boundary. The
// router answers these with an error event to the sender only.
type MalformedError struct{ Reason string }

func (m *MalformedError) Error() string { return "malformed event: " + m.Reason }

func malformed(format string, args ...any) error {
	return &MalformedError{Reason: fmt.Sprintf(format, args...)}
}

// Decode parses a wire frame into exactly one of the inbound variants.
func Decode(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, malformed("invalid frame: %v", err)
	}
	switch env.Type {
	case TypeRegister:
		var ev Register
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.Identity == "" || ev.Role == "" {
			return nil, malformed("%s requires role and identity", env.Type)
		}
		return ev, nil
	case TypeRideCreate:
		var ev RideCreate
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeBidPlace:
		var ev BidPlace
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.RequestID == "" {
			return nil, malformed("%s requires request_id", env.Type)
		}
		return ev, nil
	case TypeBidAccept:
		var ev BidAccept
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.RequestID == "" || ev.BidID == "" {
			return nil, malformed("%s requires request_id and bid_id", env.Type)
		}
		return ev, nil
	case TypeRideCancel:
		var ev RideCancel
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.RequestID == "" {
			return nil, malformed("%s requires request_id", env.Type)
		}
		return ev, nil
	case TypeRideComplete:
		var ev RideComplete
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.RequestID == "" {
			return nil, malformed("%s requires request_id", env.Type)
		}
		return ev, nil
	case TypeRideProgress:
		var ev RideProgress
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.RequestID == "" {
			return nil, malformed("%s requires request_id", env.Type)
		}
		return ev, nil
	case TypePresenceUpdate:
		var ev PresenceUpdate
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.Status == "" {
			return nil, malformed("%s requires status", env.Type)
		}
		return ev, nil
	default:
		return nil, malformed("unknown event type %q", env.Type)
	}
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return malformed("missing data payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return malformed("invalid data payload: %v", err)
	}
	return nil
}

// ErrorEvent is the structured rejection sent to the originating client.
type ErrorEvent struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Encode wraps a payload in an envelope frame.
func Encode(eventType string, payload any) []byte {
	data, _ := json.Marshal(payload)
	b, _ := json.Marshal(Envelope{Type: eventType, Data: data})
	return b
}

// RideEvent is the outbound payload for ride lifecycle broadcasts.
type RideEvent struct {
	Request         models.RideRequest `json:"request"`
	SuggestedBidID  string             `json:"suggested_bid_id,omitempty"`
	RecipientPruned bool               `json:"pruned,omitempty"`
}

// RegisteredEvent acknowledges a successful connection binding.
type RegisteredEvent struct {
	Role     string `json:"role"`
	Identity string `json:"identity"`
}

// PresenceEvent mirrors a driver presence change to interested parties.
type PresenceEvent struct {
	Presence models.DriverPresence `json:"presence"`
}
