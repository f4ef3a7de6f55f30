package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-bidding/internal/models"
)

type fakeUpdater struct {
	geoErrs  int
	hsetErrs int

	geoCalls  int
	hsetCalls int

	lastGeo  *redis.GeoLocation
	lastMeta map[string]interface{}
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	f.lastGeo = loc
	if f.geoErrs > 0 {
		f.geoErrs--
		return errors.New("geoadd transient")
	}
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hsetCalls++
	f.lastMeta = values
	if f.hsetErrs > 0 {
		f.hsetErrs--
		return errors.New("hset transient")
	}
	return nil
}

func TestUpdateRedisWithRetrySucceedsFirstTry(t *testing.T) {
	f := &fakeUpdater{}
	p := &models.DriverPresence{
		DriverID: "d1",
		Status:   models.DriverAvailable,
		Loc:      models.Coord{Lat: 28.6, Lon: 77.2},
		Rating:   4.7,
	}
	if err := updateRedisWithRetry(context.Background(), f, p, 3, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.geoCalls != 1 || f.hsetCalls != 1 {
		t.Fatalf("calls geo=%d hset=%d", f.geoCalls, f.hsetCalls)
	}
	if f.lastGeo.Name != "d1" || f.lastGeo.Latitude != 28.6 {
		t.Fatalf("geo location: %+v", f.lastGeo)
	}
	if f.lastMeta["status"] != "available" {
		t.Fatalf("meta: %+v", f.lastMeta)
	}
}

func TestUpdateRedisWithRetryRecoversFromTransientErrors(t *testing.T) {
	f := &fakeUpdater{geoErrs: 1, hsetErrs: 1}
	p := &models.DriverPresence{DriverID: "d1", Status: models.DriverBusy}
	if err := updateRedisWithRetry(context.Background(), f, p, 3, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.geoCalls < 2 {
		t.Fatalf("expected geo retry, calls=%d", f.geoCalls)
	}
}

func TestUpdateRedisWithRetryGivesUpAfterAttempts(t *testing.T) {
	f := &fakeUpdater{geoErrs: 10}
	p := &models.DriverPresence{DriverID: "d1"}
	if err := updateRedisWithRetry(context.Background(), f, p, 3, time.Millisecond); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if f.geoCalls != 3 {
		t.Fatalf("geo calls=%d, want 3", f.geoCalls)
	}
}
