package core

import (
	"sync"
	"testing"
)

func TestRegistryAdmitAndDismiss(t *testing.T) {
	r := NewRegistry()

	c1 := NewClient("c1")
	c2 := NewClient("c2")

	if !r.Admit(1, c1) {
		t.Fatal("first connection should report came online")
	}
	if r.Admit(1, c2) {
		t.Fatal("second connection of the same identity should not report came online")
	}
	if r.Admit(1, c1) {
		t.Fatal("re-admitting the same connection should be a no-op")
	}
	if !r.Online(1) {
		t.Fatal("identity should be online")
	}
	if got := len(r.ConnectionsFor(1)); got != 2 {
		t.Fatalf("expected 2 connections, got %d", got)
	}

	if userID, wentOffline := r.Dismiss(c1); userID != 1 || wentOffline {
		t.Fatalf("dismissing one of two connections: got userID=%d wentOffline=%v", userID, wentOffline)
	}
	if userID, wentOffline := r.Dismiss(c2); userID != 1 || !wentOffline {
		t.Fatalf("dismissing the last connection: got userID=%d wentOffline=%v", userID, wentOffline)
	}
	if r.Online(1) {
		t.Fatal("identity should be offline after last dismiss")
	}

	// Unknown connections are a no-op.
	if userID, wentOffline := r.Dismiss(c1); userID != 0 || wentOffline {
		t.Fatalf("dismissing unknown connection: got userID=%d wentOffline=%v", userID, wentOffline)
	}
}

func TestRegistryAdmitRebindDetachesPreviousOwner(t *testing.T) {
	r := NewRegistry()
	c := NewClient("c1")

	if !r.Admit(1, c) {
		t.Fatal("first admit should report came online")
	}
	r.JoinRoom(1, 10)

	if !r.Admit(2, c) {
		t.Fatal("rebinding the connection should report identity 2 came online")
	}
	if r.Online(1) {
		t.Fatal("identity 1 still online after its only connection was rebound")
	}
	if got := len(r.FanoutTargets(10)); got != 0 {
		t.Fatalf("identity 1's subscriptions should be gone, got %d targets", got)
	}

	if userID, wentOffline := r.Dismiss(c); userID != 2 || !wentOffline {
		t.Fatalf("dismiss should take identity 2 offline, got userID=%d wentOffline=%v", userID, wentOffline)
	}
	if r.Online(2) {
		t.Fatal("identity 2 should be offline")
	}
}

func TestRegistryRoomSubscriptions(t *testing.T) {
	r := NewRegistry()

	alice1 := NewClient("a1")
	alice2 := NewClient("a2")
	bob := NewClient("b")

	r.Admit(1, alice1)
	r.Admit(1, alice2)
	r.Admit(2, bob)

	r.JoinRoom(1, 10)
	r.JoinRoom(2, 10)
	r.JoinRoom(2, 20)

	// Fan-out reaches every connection of every subscribed identity.
	if got := len(r.FanoutTargets(10)); got != 3 {
		t.Fatalf("expected 3 fanout targets for room 10, got %d", got)
	}
	if got := len(r.FanoutTargets(20)); got != 1 {
		t.Fatalf("expected 1 fanout target for room 20, got %d", got)
	}
	if got := len(r.FanoutTargets(99)); got != 0 {
		t.Fatalf("expected no targets for unknown room, got %d", got)
	}

	r.LeaveRoom(1, 10)
	if got := len(r.FanoutTargets(10)); got != 1 {
		t.Fatalf("expected 1 target after alice left, got %d", got)
	}

	if rooms := r.JoinedRooms(2); len(rooms) != 2 {
		t.Fatalf("expected bob in 2 rooms, got %v", rooms)
	}

	// Joining for an unknown identity is ignored.
	r.JoinRoom(42, 10)
	if r.Online(42) {
		t.Fatal("join must not create an identity entry")
	}
}

func TestRegistryDismissDropsSubscriptions(t *testing.T) {
	r := NewRegistry()

	c := NewClient("c")
	r.Admit(1, c)
	r.JoinRoom(1, 10)

	r.Dismiss(c)
	if got := len(r.FanoutTargets(10)); got != 0 {
		t.Fatalf("expected no targets after dismiss, got %d", got)
	}
	if rooms := r.JoinedRooms(1); rooms != nil {
		t.Fatalf("expected no joined rooms, got %v", rooms)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			c := NewClient("c")
			r.Admit(n%4, c)
			r.JoinRoom(n%4, 10)
			r.FanoutTargets(10)
			r.Dismiss(c)
		}(int64(i))
	}
	wg.Wait()

	if got := len(r.FanoutTargets(10)); got != 0 {
		t.Fatalf("expected empty registry after all dismissals, got %d targets", got)
	}
}
