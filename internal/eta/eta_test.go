package eta

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/example/ride-bidding/internal/models"
)

type fakeClient struct {
	seconds float64
	err     error
	calls   int
}

func (f *fakeClient) EstimateSeconds(from, to models.Coord) (float64, error) {
	f.calls++
	return f.seconds, f.err
}

func TestHaversineKnownDistance(t *testing.T) {
	// Connaught Place to IGI Airport, roughly 12.7 km straight line.
	d := Haversine(28.6315, 77.2167, 28.5562, 77.1000)
	if d < 12000 || d > 15000 {
		t.Fatalf("distance %f out of expected range", d)
	}
}

func TestEstimateFallsBackToStraightLine(t *testing.T) {
	e := &Estimator{SpeedMps: 10}
	from := models.Coord{Lat: 28.6315, Lon: 77.2167}
	to := models.Coord{Lat: 28.5562, Lon: 77.1000}
	km, minutes := e.Estimate(from, to)
	if km <= 0 || minutes <= 0 {
		t.Fatalf("km=%f minutes=%d", km, minutes)
	}
	wantMin := int(math.Round(Haversine(from.Lat, from.Lon, to.Lat, to.Lon) / 10 / 60))
	if minutes != wantMin {
		t.Fatalf("minutes=%d want %d", minutes, wantMin)
	}
}

func TestEstimateUsesClientAndCache(t *testing.T) {
	client := &fakeClient{seconds: 600}
	e := &Estimator{Client: client, Cache: NewCache(time.Minute), SpeedMps: 10}
	from := models.Coord{Lat: 1, Lon: 1}
	to := models.Coord{Lat: 2, Lon: 2}

	_, minutes := e.Estimate(from, to)
	if minutes != 10 {
		t.Fatalf("minutes=%d want 10", minutes)
	}
	e.Estimate(from, to)
	if client.calls != 1 {
		t.Fatalf("client called %d times, cache should absorb the repeat", client.calls)
	}
}

func TestEstimateSurvivesClientFailure(t *testing.T) {
	client := &fakeClient{err: errors.New("osrm down")}
	e := &Estimator{Client: client, SpeedMps: 10}
	_, minutes := e.Estimate(models.Coord{Lat: 1, Lon: 1}, models.Coord{Lat: 2, Lon: 2})
	if minutes <= 0 {
		t.Fatalf("fallback estimate missing, minutes=%d", minutes)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Nanosecond)
	a := models.Coord{Lat: 1, Lon: 1}
	b := models.Coord{Lat: 2, Lon: 2}
	c.Set(a, b, 42)
	time.Sleep(time.Millisecond)
	if _, ok := c.Get(a, b); ok {
		t.Fatal("expired entry should miss")
	}
}
