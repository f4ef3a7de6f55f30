package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-bidding/internal/models"
)

// Producer streams ride lifecycle events and driver presence updates to
// kafka for downstream analytics. Publishing is best-effort and never sits
// inside a coordinator critical section.
type Producer struct {
	rides    *kafka.Writer
	presence *kafka.Writer
}

func NewProducer(brokers []string, rideTopic, presenceTopic string) *Producer {
	return &Producer{
		rides:    kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: rideTopic, Balancer: &kafka.LeastBytes{}}),
		presence: kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: presenceTopic, Balancer: &kafka.LeastBytes{}}),
	}
}

// RideEvent is the analytics record emitted on every lifecycle transition.
type RideEvent struct {
	Event     string    `json:"event"`
	RequestID string    `json:"request_id"`
	Status    string    `json:"status"`
	RiderID   string    `json:"rider_id"`
	DriverID  string    `json:"driver_id,omitempty"`
	Bids      int       `json:"bids"`
	At        time.Time `json:"at"`
}

func (p *Producer) PublishRideEvent(event string, req models.RideRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev := RideEvent{
		Event:     event,
		RequestID: req.ID,
		Status:    string(req.Status),
		RiderID:   req.RiderID,
		Bids:      len(req.Bids),
		At:        time.Now(),
	}
	if req.Driver != nil {
		ev.DriverID = req.Driver.DriverID
	}
	b, _ := json.Marshal(ev)
	return p.rides.WriteMessages(ctx, kafka.Message{Key: []byte(req.ID), Value: b})
}

func (p *Producer) PublishPresence(pr models.DriverPresence) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(pr)
	return p.presence.WriteMessages(ctx, kafka.Message{Key: []byte(pr.DriverID), Value: b})
}

func (p *Producer) Close() error {
	var err error
	if p.rides != nil {
		err = p.rides.Close()
	}
	if p.presence != nil {
		if cerr := p.presence.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
