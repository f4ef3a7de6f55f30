package presence

import (
	"sync"
	"time"

	"github.com/example/ride-bidding/internal/models"
)

// Tracker is the minimal interface the coordinator and router need.
type Tracker interface {
	Upsert(p models.DriverPresence)
	SetStatus(driverID string, st models.PresenceStatus) (models.DriverPresence, bool)
	Get(driverID string) (models.DriverPresence, bool)
	Available() []models.DriverPresence
}

// Index is the in-process authoritative presence map.
type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.DriverPresence
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.DriverPresence)}
}

func (g *Index) Upsert(p models.DriverPresence) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p.Updated = time.Now()
	if p.Status == "" {
		p.Status = models.DriverAvailable
	}
	g.drivers[p.DriverID] = p
}

func (g *Index) SetStatus(driverID string, st models.PresenceStatus) (models.DriverPresence, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.drivers[driverID]
	if !ok {
		p = models.DriverPresence{DriverID: driverID}
	}
	p.Status = st
	p.Updated = time.Now()
	g.drivers[driverID] = p
	return p, ok
}

func (g *Index) Get(driverID string) (models.DriverPresence, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.drivers[driverID]
	return p, ok
}

func (g *Index) Available() []models.DriverPresence {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.DriverPresence, 0, len(g.drivers))
	for _, p := range g.drivers {
		if p.Status == models.DriverAvailable {
			out = append(out, p)
		}
	}
	return out
}
