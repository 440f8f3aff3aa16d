package core

import (
	"reflect"
	"testing"
)

func TestRegistryPresenceFollowsConnectionSet(t *testing.T) {
	r := NewRegistry()
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")

	r.Subscribe("room:lobby", "alice", c1)
	r.Subscribe("room:lobby", "alice", c2)

	if got := r.Identities("room:lobby"); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Fatalf("expected [alice], got %v", got)
	}

	if departed := r.Unsubscribe("room:lobby", "alice", c1); departed {
		t.Fatalf("identity with a remaining connection must not depart")
	}
	if got := r.Identities("room:lobby"); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Fatalf("expected [alice] after partial unsubscribe, got %v", got)
	}

	if departed := r.Unsubscribe("room:lobby", "alice", c2); !departed {
		t.Fatalf("removing the last connection must signal departure")
	}
	if got := r.Identities("room:lobby"); len(got) != 0 {
		t.Fatalf("expected empty channel, got %v", got)
	}
}

func TestRegistryDepartureSignalledExactlyOnce(t *testing.T) {
	r := NewRegistry()
	c := newFakeConn("c1")

	r.Subscribe("room:lobby", "alice", c)

	if !r.Unsubscribe("room:lobby", "alice", c) {
		t.Fatalf("expected departure on last unsubscribe")
	}
	if r.Unsubscribe("room:lobby", "alice", c) {
		t.Fatalf("second unsubscribe of an absent pair must be a no-op")
	}
}

func TestRegistrySubscribeIdempotent(t *testing.T) {
	r := NewRegistry()
	c := newFakeConn("c1")

	r.Subscribe("room:lobby", "alice", c)
	r.Subscribe("room:lobby", "alice", c)

	// A single unsubscribe must fully depart, proving the handle was not
	// double-counted.
	if !r.Unsubscribe("room:lobby", "alice", c) {
		t.Fatalf("expected departure after single unsubscribe")
	}
}

func TestRegistryDropConnReportsSoleConnectionsOnly(t *testing.T) {
	r := NewRegistry()
	c := newFakeConn("c1")
	other := newFakeConn("c2")

	r.Subscribe("room:a", "x", c)
	r.Subscribe("room:a", "x", other) // x survives via other
	r.Subscribe("room:b", "y", c)     // y departs with c

	departed := r.DropConn(c)
	if len(departed) != 1 || departed[0] != (Departure{Channel: "room:b", Identity: "y"}) {
		t.Fatalf("unexpected departures: %+v", departed)
	}

	if r.IsSubscribed("room:a", "x", c) {
		t.Fatalf("dropped connection still subscribed to room:a")
	}
	if !r.IsSubscribed("room:a", "x", other) {
		t.Fatalf("surviving connection lost its subscription")
	}
	if len(r.DropConn(c)) != 0 {
		t.Fatalf("second drop must report nothing")
	}
}

func TestRegistryIdentitiesExcludesAnonymous(t *testing.T) {
	r := NewRegistry()
	r.Subscribe("room:lobby", "", newFakeConn("c1"))
	r.Subscribe("room:lobby", "bob", newFakeConn("c2"))

	if got := r.Identities("room:lobby"); !reflect.DeepEqual(got, []string{"bob"}) {
		t.Fatalf("expected [bob], got %v", got)
	}
	if got := r.Connections("room:lobby"); len(got) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(got))
	}
}

func TestRegistryUnsubscribeUnknownPair(t *testing.T) {
	r := NewRegistry()
	if r.Unsubscribe("room:ghost", "nobody", newFakeConn("c1")) {
		t.Fatalf("unknown pair must not depart")
	}
}
