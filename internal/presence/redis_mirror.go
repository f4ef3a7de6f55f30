package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-bidding/internal/models"
)

// RedisMirror decorates a Tracker and write-throughs every update into
// redis GEO + metadata hashes so fleet-map readers never touch the engine.
// Mirror writes are best-effort; the in-memory index stays authoritative.
type RedisMirror struct {
	Tracker
	client *redis.Client
	key    string
}

func NewRedisMirror(inner Tracker, addr, password, key string) *RedisMirror {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisMirror{Tracker: inner, client: c, key: key}
}

func (r *RedisMirror) Upsert(p models.DriverPresence) {
	r.Tracker.Upsert(p)
	r.mirror(p)
}

func (r *RedisMirror) SetStatus(driverID string, st models.PresenceStatus) (models.DriverPresence, bool) {
	p, ok := r.Tracker.SetStatus(driverID, st)
	r.mirror(p)
	return p, ok
}

func (r *RedisMirror) mirror(p models.DriverPresence) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: p.Loc.Lon, Latitude: p.Loc.Lat, Name: p.DriverID,
	}).Result()
	_ = r.client.HSet(ctx, metaKey(p.DriverID), map[string]interface{}{
		"status":  string(p.Status),
		"rating":  fmt.Sprintf("%f", p.Rating),
		"updated": time.Now().Format(time.RFC3339),
	}).Err()
}

func metaKey(id string) string { return "driver:meta:" + id }
