package dispatch

import (
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSendDeliversFrames(t *testing.T) {
	h := NewHub(nil)
	c := &fakeConn{}
	h.Add("c1", c)
	defer h.Remove("c1")

	h.Send("c1", []byte(`{"type":"ride.created"}`))
	h.SendAll([]string{"c1"}, []byte(`{"type":"ride.bid.updated"}`))

	waitFor(t, func() bool { return c.frameCount() == 2 })
}

func TestSendToUnknownConnectionIsNoOp(t *testing.T) {
	h := NewHub(nil)
	h.Send("ghost", []byte("x"))
}

func TestRemoveClosesConnection(t *testing.T) {
	h := NewHub(nil)
	c := &fakeConn{}
	h.Add("c1", c)
	h.Remove("c1")

	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.closed
	})
	// Removing twice is safe.
	h.Remove("c1")
}

func TestSendRacingRemoveDoesNotPanic(t *testing.T) {
	h := NewHub(nil)
	for i := 0; i < 50; i++ {
		h.Add("c1", &fakeConn{})
		var wg sync.WaitGroup
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 20; k++ {
					h.Send("c1", []byte("x"))
				}
			}()
		}
		h.Remove("c1")
		wg.Wait()
	}
}

func TestAddReplacesExistingSession(t *testing.T) {
	h := NewHub(nil)
	old := &fakeConn{}
	h.Add("c1", old)
	fresh := &fakeConn{}
	h.Add("c1", fresh)
	defer h.Remove("c1")

	waitFor(t, func() bool {
		old.mu.Lock()
		defer old.mu.Unlock()
		return old.closed
	})
	h.Send("c1", []byte("hello"))
	waitFor(t, func() bool { return fresh.frameCount() == 1 })
}
