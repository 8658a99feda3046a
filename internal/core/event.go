package core

import (
	"time"

	"github.com/relaychat/relaychat-server/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventAuthenticated confirms authentication and carries the identity's rooms.
	EventAuthenticated EventKind = iota
	// EventAuthError reports a failed authentication attempt.
	EventAuthError
	// EventRoomJoined confirms a room subscription and delivers recent history.
	EventRoomJoined
	// EventRoomLeft confirms an unsubscription.
	EventRoomLeft
	// EventUserJoinedRoom notifies a room that a user subscribed.
	EventUserJoinedRoom
	// EventUserLeftRoom notifies a room that a user unsubscribed.
	EventUserLeftRoom
	// EventNewMessage delivers a chat message to room subscribers.
	EventNewMessage
	// EventUserTyping relays a typing indicator.
	EventUserTyping
	// EventUserStatusChanged notifies rooms about a presence transition.
	EventUserStatusChanged
	// EventMessagesRead notifies a room about new read receipts.
	EventMessagesRead
	// EventGroupCreated delivers a newly created group room.
	EventGroupCreated
	// EventRoomCreated delivers a found-or-created private room to the caller.
	EventRoomCreated
	// EventRoomOnlineUsers reports the online participants of a room.
	EventRoomOnlineUsers
	// EventError notifies the originating client about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind EventKind
	At   time.Time

	RoomID     int64
	User       *store.User
	UserID     int64
	Status     store.Status
	Message    *store.Message
	Messages   []*store.Message
	Room       *store.Room
	Rooms      []*store.Room
	Users      []*store.User
	MessageIDs []int64
	ReadBy     int64
	IsTyping   bool
	Err        *Error
}

func newEvent(kind EventKind) *Event {
	return &Event{Kind: kind, At: time.Now()}
}

func errorEvent(err *Error) *Event {
	ev := newEvent(EventError)
	ev.Err = err
	return ev
}
