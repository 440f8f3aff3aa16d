package core

import (
	"sort"
	"sync"
)

// Conn is a live transport session as seen by the core layer. The registry
// holds conns only as routing references; their lifecycle belongs to the
// transport.
type Conn interface {
	// ID returns the opaque session handle assigned at connect time.
	ID() string
	// Send queues an event for delivery. It must not block; a full buffer
	// or closed session is reported as an error.
	Send(*Event) error
}

// Departure reports that an identity's last connection left a channel.
type Departure struct {
	Channel  string
	Identity string
}

// Registry is the authoritative in-memory mapping of
// channel -> identity -> live connections. It is not persisted; all
// presence is implicitly cleared on restart.
type Registry struct {
	mu       sync.Mutex
	channels map[string]map[string]map[string]Conn
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[string]map[string]Conn),
	}
}

// Subscribe adds the connection to the identity's set within a channel,
// creating channel and identity entries as needed. Idempotent.
func (r *Registry) Subscribe(channel, identity string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identities := r.channels[channel]
	if identities == nil {
		identities = make(map[string]map[string]Conn)
		r.channels[channel] = identities
	}
	conns := identities[identity]
	if conns == nil {
		conns = make(map[string]Conn)
		identities[identity] = conns
	}
	conns[conn.ID()] = conn
}

// Unsubscribe removes the connection from the identity's set. It reports
// whether the identity fully departed the channel, which happens exactly
// once per present-to-absent transition. Unknown pairs are a no-op.
func (r *Registry) Unsubscribe(channel, identity string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(channel, identity, conn.ID())
}

// DropConn removes the connection from every channel and identity it is
// registered under, returning the (channel, identity) pairs that fully
// departed. Used on transport disconnect, which does not announce which
// channels the session held.
func (r *Registry) DropConn(conn Conn) []Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	var departed []Departure
	for channel, identities := range r.channels {
		for identity, conns := range identities {
			if _, ok := conns[id]; !ok {
				continue
			}
			if r.removeLocked(channel, identity, id) {
				departed = append(departed, Departure{Channel: channel, Identity: identity})
			}
		}
	}
	return departed
}

// Identities returns the distinct identities currently subscribed to a
// channel, sorted for deterministic snapshots. The anonymous identity
// (empty label) is excluded.
func (r *Registry) Identities(channel string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	identities := r.channels[channel]
	out := make([]string, 0, len(identities))
	for identity := range identities {
		if identity == "" {
			continue
		}
		out = append(out, identity)
	}
	sort.Strings(out)
	return out
}

// Connections returns every live connection subscribed to a channel,
// across all identities. A connection subscribed under several identities
// appears once.
func (r *Registry) Connections(channel string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{})
	var out []Conn
	for _, conns := range r.channels[channel] {
		for id, conn := range conns {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, conn)
		}
	}
	return out
}

// IsSubscribed reports whether the connection is registered for the given
// (channel, identity) pair.
func (r *Registry) IsSubscribed(channel, identity string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.channels[channel][identity]
	if conns == nil {
		return false
	}
	_, ok := conns[conn.ID()]
	return ok
}

// removeLocked deletes a connection handle and collapses empty identity and
// channel entries. Removing the last handle, deleting the identity entry,
// and signalling departure form one step under the registry lock.
func (r *Registry) removeLocked(channel, identity, connID string) bool {
	identities := r.channels[channel]
	if identities == nil {
		return false
	}
	conns := identities[identity]
	if conns == nil {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) > 0 {
		return false
	}
	delete(identities, identity)
	if len(identities) == 0 {
		delete(r.channels, channel)
	}
	return true
}
