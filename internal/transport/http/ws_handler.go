package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vibechat/relay/internal/core"
	"github.com/vibechat/relay/internal/proto"
)

// wsConn adapts a websocket connection to core.Conn. Events are queued on a
// buffered channel drained by the write loop; a full queue marks the client
// a slow consumer and the gateway drops it.
type wsConn struct {
	id     string
	events chan *core.Event
}

const eventQueueSize = 64

func newWSConn() *wsConn {
	return &wsConn{
		id:     uuid.NewString(),
		events: make(chan *core.Event, eventQueueSize),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(ev *core.Event) error {
	select {
	case c.events <- ev:
		return nil
	default:
		return core.ErrSlowConsumer
	}
}

type wsOptions struct {
	// RateLimit caps inbound messages per second; zero disables it.
	RateLimit int
	// RequireToken rejects upgrades without a token query parameter before
	// the gateway is even consulted.
	RequireToken bool
}

// WSHandler upgrades HTTP connections and bridges them to the gateway.
type WSHandler struct {
	gateway *core.Gateway
	opts    wsOptions
	log     *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(gateway *core.Gateway, opts wsOptions, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{gateway: gateway, opts: opts, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get("token")
	if h.opts.RequireToken && token == "" {
		stdhttp.Error(w, "missing token", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := newWSConn()
	if _, err := h.gateway.Connect(ctx, client, token); err != nil {
		h.log.Debug().Err(err).Str("conn_id", client.ID()).Msg("ws admission rejected")
		conn.Close(websocket.StatusPolicyViolation, "admission rejected")
		return
	}
	defer h.gateway.Disconnect(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *wsConn) error {
	limiter := newRateLimiter(h.opts.RateLimit)
	defer limiter.stop()

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !limiter.allow() {
			h.log.Debug().Str("conn_id", client.ID()).Msg("rate limit exceeded, dropping message")
			continue
		}

		// Malformed and unknown messages are dropped without a response.
		cmd := inboundToCommand(inbound)
		if cmd == nil {
			continue
		}
		h.gateway.Dispatch(client, *cmd)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *wsConn) error {
	for {
		select {
		case event := <-client.events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID()).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
