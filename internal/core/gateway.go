package core

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// Identity is an authenticated participant resolved during admission.
type Identity struct {
	UserID   int64
	Username string
}

// Label returns the registry identity string for an authenticated user.
func (i Identity) Label() string {
	return strconv.FormatInt(i.UserID, 10)
}

// IdentityResolver turns a credential token into an active identity.
// Implemented by the auth layer; the gateway never inspects tokens itself.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (Identity, error)
}

// Admission decides whether a handshake is admitted. A nil identity with a
// nil error means an anonymous session was admitted.
type Admission interface {
	Admit(ctx context.Context, token string) (*Identity, error)
}

// OpenAdmission admits every connection anonymously.
type OpenAdmission struct{}

// Admit implements Admission.
func (OpenAdmission) Admit(context.Context, string) (*Identity, error) {
	return nil, nil
}

// TokenAdmission admits only connections presenting a credential that
// resolves to an active identity.
type TokenAdmission struct {
	Resolver IdentityResolver
}

// Admit implements Admission.
func (a TokenAdmission) Admit(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	identity, err := a.Resolver.ResolveIdentity(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	return &identity, nil
}

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoin subscribes the connection to a channel.
	CommandJoin CommandKind = iota
	// CommandLeave unsubscribes the connection from a channel.
	CommandLeave
)

// Command represents an action requested by a connection.
type Command struct {
	Kind     CommandKind
	Channel  string
	Identity string
}

type connState int

const (
	stateConnecting connState = iota
	stateAdmitted
	stateClosed
)

type session struct {
	conn     Conn
	state    connState
	identity *Identity
}

// Gateway drives each connection's lifecycle and the fan-out of events to
// channel subscribers. The admission policy and the registry are injected;
// one registry may back several gateways.
type Gateway struct {
	registry  *Registry
	admission Admission
	log       *zerolog.Logger

	handlers map[CommandKind]func(Conn, Command)

	mu       sync.Mutex
	sessions map[string]*session
}

// NewGateway constructs a gateway over the given registry and admission
// policy.
func NewGateway(registry *Registry, admission Admission, logger *zerolog.Logger) *Gateway {
	g := &Gateway{
		registry:  registry,
		admission: admission,
		log:       logger,
		sessions:  make(map[string]*session),
	}
	g.handlers = map[CommandKind]func(Conn, Command){
		CommandJoin:  g.handleJoin,
		CommandLeave: g.handleLeave,
	}
	return g
}

// Connect admits a new connection. On success the connection is sent a
// connected event and, for authenticated sessions, auto-subscribed to the
// identity's private inbox channel. On failure the session is closed and
// the caller must drop the transport connection.
func (g *Gateway) Connect(ctx context.Context, conn Conn, token string) (*Identity, error) {
	g.mu.Lock()
	g.sessions[conn.ID()] = &session{conn: conn, state: stateConnecting}
	g.mu.Unlock()

	identity, err := g.admission.Admit(ctx, token)
	if err != nil {
		g.mu.Lock()
		delete(g.sessions, conn.ID())
		g.mu.Unlock()
		g.log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("admission rejected")
		return nil, err
	}

	g.mu.Lock()
	sess := g.sessions[conn.ID()]
	if sess == nil {
		// Transport dropped between admit and here.
		g.mu.Unlock()
		return nil, ErrConnClosed
	}
	sess.state = stateAdmitted
	sess.identity = identity
	g.mu.Unlock()

	// Inbox subscription precedes the connected event so a client acting
	// on it can already be reached through its inbox channel.
	if identity != nil {
		g.registry.Subscribe(InboxChannel(identity.UserID), identity.Label(), conn)
		g.log.Debug().Int64("user_id", identity.UserID).Str("conn_id", conn.ID()).Msg("inbox subscribed")
	}

	ev := &Event{Kind: EventConnected}
	if identity != nil {
		ev.Identity = identity.Username
	}
	if err := conn.Send(ev); err != nil {
		g.Disconnect(conn)
		return nil, err
	}
	return identity, nil
}

// Dispatch routes a client command to its handler. Commands from
// connections that are not admitted, and commands of unknown kind, are
// dropped silently.
func (g *Gateway) Dispatch(conn Conn, cmd Command) {
	g.mu.Lock()
	sess := g.sessions[conn.ID()]
	admitted := sess != nil && sess.state == stateAdmitted
	g.mu.Unlock()
	if !admitted {
		return
	}
	if handler := g.handlers[cmd.Kind]; handler != nil {
		handler(conn, cmd)
	}
}

// Disconnect removes the connection from every channel it holds and
// announces departure for each identity whose last connection it was.
// Safe to call more than once per connection.
func (g *Gateway) Disconnect(conn Conn) {
	g.mu.Lock()
	delete(g.sessions, conn.ID())
	g.mu.Unlock()

	for _, d := range g.registry.DropConn(conn) {
		if d.Identity == "" {
			continue
		}
		g.broadcast(d.Channel, &Event{
			Kind:     EventUserLeft,
			Channel:  d.Channel,
			Identity: d.Identity,
		}, conn)
	}
}

// Publish broadcasts a persisted-message notification to every connection
// subscribed to the channel, the originator included. Called by the
// persistence layer after a successful write; the payload is forwarded
// verbatim.
func (g *Gateway) Publish(channel, name string, payload any) {
	g.broadcast(channel, &Event{
		Kind:    EventExternal,
		Channel: channel,
		Name:    name,
		Payload: payload,
	}, nil)
}

func (g *Gateway) handleJoin(conn Conn, cmd Command) {
	if cmd.Channel == "" {
		return
	}
	g.registry.Subscribe(cmd.Channel, cmd.Identity, conn)

	if err := conn.Send(&Event{Kind: EventJoined, Channel: cmd.Channel}); err != nil {
		g.Disconnect(conn)
		return
	}

	if cmd.Identity == "" {
		return
	}
	g.broadcast(cmd.Channel, &Event{
		Kind:     EventUserJoined,
		Channel:  cmd.Channel,
		Identity: cmd.Identity,
	}, conn)

	// Presence snapshot for the new joiner, excluding itself.
	var others []string
	for _, identity := range g.registry.Identities(cmd.Channel) {
		if identity == cmd.Identity {
			continue
		}
		others = append(others, identity)
	}
	if err := conn.Send(&Event{
		Kind:       EventActiveUsers,
		Channel:    cmd.Channel,
		Identities: others,
	}); err != nil {
		g.Disconnect(conn)
	}
}

func (g *Gateway) handleLeave(conn Conn, cmd Command) {
	if cmd.Channel == "" {
		return
	}
	departed := g.registry.Unsubscribe(cmd.Channel, cmd.Identity, conn)
	if departed && cmd.Identity != "" {
		g.broadcast(cmd.Channel, &Event{
			Kind:     EventUserLeft,
			Channel:  cmd.Channel,
			Identity: cmd.Identity,
		}, conn)
	}
	if err := conn.Send(&Event{Kind: EventLeft, Channel: cmd.Channel}); err != nil {
		g.Disconnect(conn)
	}
}

// broadcast fans an event out to every subscriber of a channel except the
// excluded connection. A failed send is treated as that subscriber's
// implicit disconnect and never stalls delivery to the rest.
func (g *Gateway) broadcast(channel string, ev *Event, exclude Conn) {
	var failed []Conn
	for _, conn := range g.registry.Connections(channel) {
		if exclude != nil && conn.ID() == exclude.ID() {
			continue
		}
		if err := conn.Send(ev); err != nil {
			g.log.Debug().Err(err).Str("conn_id", conn.ID()).Str("channel", channel).Msg("send failed, dropping connection")
			failed = append(failed, conn)
		}
	}
	for _, conn := range failed {
		g.Disconnect(conn)
	}
}
