package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaychat/relaychat-server/internal/store"
	"github.com/relaychat/relaychat-server/internal/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func nopLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// tokenVerifier resolves tokens of the form "tok-<username>" against the store.
type tokenVerifier struct {
	users store.UserStore
}

func (v *tokenVerifier) Verify(ctx context.Context, token string) (*store.User, error) {
	var username string
	if _, err := fmt.Sscanf(token, "tok-%s", &username); err != nil {
		return nil, fmt.Errorf("bad token %q", token)
	}
	return v.users.GetUserByUsername(ctx, username)
}

func newTestRouter(t *testing.T, st *sqlite.SQLiteStore) *Router {
	t.Helper()

	logger := nopLogger()
	registry := NewRegistry()
	membership := NewMembership(st, logger)
	presence := NewPresence(registry, st, logger)
	return NewRouter(registry, membership, presence, st, &tokenVerifier{users: st}, logger, 0)
}

func createTestUser(t *testing.T, st *sqlite.SQLiteStore, username string) *store.User {
	t.Helper()

	user, err := st.CreateUser(context.Background(), username, username, "hash")
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user
}

// connect starts a serve loop for a fresh client and authenticates it.
func connect(t *testing.T, ctx context.Context, r *Router, username string) *Client {
	t.Helper()

	c := NewClient("conn-" + username)
	go r.Serve(ctx, c)

	c.Commands <- &Command{Kind: CommandAuthenticate, Token: "tok-" + username}
	mustEvent(t, c.Events, EventAuthenticated)
	return c
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

// mustNoEvent fails when an event of the given kind arrives within the window.
func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v received: %+v", kind, ev)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}
