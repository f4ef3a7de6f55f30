package conn

import (
	"testing"

	"github.com/example/ride-bidding/internal/models"
	"github.com/example/ride-bidding/internal/ride"
)

func TestRegisterAndReachability(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register("c1", RoleDriver, "d1", models.DriverInfo{Name: "Asha"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.IsReachable("d1") {
		t.Fatal("d1 should be reachable")
	}
	b, err := r.Binding("c1")
	if err != nil || b.Identity != "d1" || b.Role != RoleDriver {
		t.Fatalf("binding mismatch: %+v, %v", b, err)
	}
	if p, ok := r.Profile("d1"); !ok || p.Name != "Asha" {
		t.Fatalf("profile not captured: %+v", p)
	}
}

func TestRegisterConflictingIdentityFails(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", RoleDriver, "d1", models.DriverInfo{})
	_, err := r.Register("c1", RoleDriver, "d2", models.DriverInfo{})
	if e, ok := err.(*ride.Error); !ok || e.Code != ride.CodeAlreadyRegistered {
		t.Fatalf("expected already_registered, got %v", err)
	}
	// Same identity on the same connection is an idempotent retry.
	if _, err := r.Register("c1", RoleDriver, "d1", models.DriverInfo{}); err != nil {
		t.Fatalf("idempotent re-register: %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register("c1", RoleDriver, "", models.DriverInfo{}); ride.CodeOf(err) != ride.CodeInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}
	if _, err := r.Register("c1", Role("ghost"), "d1", models.DriverInfo{}); ride.CodeOf(err) != ride.CodeInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", RoleRider, "r1", models.DriverInfo{})
	r.Unregister("c1")
	if r.IsReachable("r1") {
		t.Fatal("r1 should be unreachable after unregister")
	}
	// Unknown connection is a no-op.
	r.Unregister("c1")
	r.Unregister("never-seen")
}

func TestUnregisterKeepsNewerBinding(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", RoleRider, "r1", models.DriverInfo{})
	// Reconnect binds the identity to a fresh connection before the old
	// one is torn down.
	r.Register("c2", RoleRider, "r1", models.DriverInfo{})
	r.Unregister("c1")
	if !r.IsReachable("r1") {
		t.Fatal("newer connection must keep r1 reachable")
	}
	if c, _ := r.ConnFor("r1"); c != "c2" {
		t.Fatalf("expected c2, got %s", c)
	}
}

func TestProfileSurvivesDisconnect(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", RoleDriver, "d1", models.DriverInfo{Name: "Asha", Vehicle: "KA-01 Swift"})
	r.Unregister("c1")

	if r.IsReachable("d1") {
		t.Fatal("d1 should be unreachable")
	}
	p, ok := r.Profile("d1")
	if !ok || p.Name != "Asha" || p.Vehicle != "KA-01 Swift" {
		t.Fatalf("profile lost on disconnect: %+v ok=%v", p, ok)
	}

	// A reconnect with a fresher profile replaces the snapshot.
	r.Register("c2", RoleDriver, "d1", models.DriverInfo{Name: "Asha", Vehicle: "KA-05 Baleno"})
	if p, _ := r.Profile("d1"); p.Vehicle != "KA-05 Baleno" {
		t.Fatalf("stale profile after re-register: %+v", p)
	}
}

func TestBindingUnknownConnection(t *testing.T) {
	r := NewRegistry()
	_, err := r.Binding("ghost")
	if ride.CodeOf(err) != ride.CodeNotRegistered {
		t.Fatalf("expected not_registered, got %v", err)
	}
}
