package core

import (
	"sync/atomic"

	"github.com/relaychat/relaychat-server/internal/store"
)

// State is the lifecycle state of a connection.
type State int32

const (
	// StateUnauthenticated is the initial state; every room and message
	// operation is rejected until authentication succeeds.
	StateUnauthenticated State = iota
	// StateAuthenticated is entered on successful credential verification.
	StateAuthenticated
	// StateClosed is terminal, reached on transport close or disconnect.
	StateClosed
)

// Client is one live transport session as seen by the core layer. It owns
// at most one identity; one identity may have several concurrent clients.
type Client struct {
	// ConnID uniquely identifies this connection.
	ConnID string

	// Commands carries inbound actions from the transport, processed in
	// order by the router's per-connection loop.
	Commands chan *Command

	// Events carries outbound notifications toward the transport.
	Events chan *Event

	state atomic.Int32
	user  atomic.Pointer[store.User]
}

// NewClient constructs a client with initialized channels.
func NewClient(connID string) *Client {
	return &Client{
		ConnID:   connID,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 32),
	}
}

// State reports the connection's lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// User returns the owning identity, or nil while unauthenticated.
func (c *Client) User() *store.User {
	return c.user.Load()
}

// UserID returns the owning identity's id, or 0 while unauthenticated.
func (c *Client) UserID() int64 {
	if u := c.user.Load(); u != nil {
		return u.ID
	}
	return 0
}

func (c *Client) setAuthenticated(u *store.User) {
	c.user.Store(u)
	c.state.Store(int32(StateAuthenticated))
}

func (c *Client) setClosed() {
	c.state.Store(int32(StateClosed))
}

// send delivers an event to the client, dropping it if the client's event
// buffer is full. Slow consumers lose events rather than block the router.
func (c *Client) send(ev *Event) {
	select {
	case c.Events <- ev:
	default:
	}
}
