package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relaychat/relaychat-server/internal/core"
	"github.com/relaychat/relaychat-server/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	router      *core.Router
	log         *zerolog.Logger
	authTimeout time.Duration
}

// NewWSHandler builds a new WebSocket handler. Connections that do not
// authenticate within authTimeout are dropped.
func NewWSHandler(router *core.Router, logger *zerolog.Logger, authTimeout time.Duration) stdhttp.Handler {
	return &WSHandler{router: router, log: logger, authTimeout: authTimeout}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := core.NewClient(uuid.NewString())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go h.router.Serve(ctx, client)
	go h.enforceAuthWindow(ctx, cancel, client)

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
			h.log.Warn().Err(err).Str("conn_id", client.ConnID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// enforceAuthWindow drops the connection if it has not authenticated within
// the configured window.
func (h *WSHandler) enforceAuthWindow(ctx context.Context, cancel context.CancelFunc, client *core.Client) {
	timer := time.NewTimer(h.authTimeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		if client.State() != core.StateAuthenticated {
			h.log.Debug().Str("conn_id", client.ConnID).Msg("authentication window elapsed")
			cancel()
		}
	case <-ctx.Done():
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			// Envelope parsed but its data did not. That is a client
			// mistake scoped to one message, not a broken socket.
			h.log.Debug().Err(err).Str("conn_id", client.ConnID).Str("type", inbound.Type).Msg("malformed payload")
			protoErr = &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "malformed payload"}
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}
		if cmd != nil {
			select {
			case client.Commands <- cmd:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ConnID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
