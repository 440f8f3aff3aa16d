package core

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeConn is an in-memory Conn for exercising the registry and gateway
// without a live socket.
type fakeConn struct {
	id     string
	events chan *Event

	mu      sync.Mutex
	failing bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{
		id:     id,
		events: make(chan *Event, 32),
	}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev *Event) error {
	c.mu.Lock()
	failing := c.failing
	c.mu.Unlock()
	if failing {
		return ErrConnClosed
	}
	select {
	case c.events <- ev:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// fail makes every subsequent Send return an error, simulating a dead
// transport session.
func (c *fakeConn) fail() {
	c.mu.Lock()
	c.failing = true
	c.mu.Unlock()
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event %+v", ev)
			}
		default:
			return
		}
	}
}

func newTestGateway(admission Admission) (*Gateway, *Registry) {
	logger := zerolog.Nop()
	registry := NewRegistry()
	return NewGateway(registry, admission, &logger), registry
}
