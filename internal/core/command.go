package core

import "github.com/relaychat/relaychat-server/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandAuthenticate verifies a bearer credential and admits the connection.
	CommandAuthenticate CommandKind = iota
	// CommandJoinRoom subscribes the connection to a room it participates in.
	CommandJoinRoom
	// CommandLeaveRoom unsubscribes the connection from a room.
	CommandLeaveRoom
	// CommandSendMessage persists and fans out a chat message.
	CommandSendMessage
	// CommandTyping relays a typing indicator to the room.
	CommandTyping
	// CommandMarkRead records read receipts for room messages.
	CommandMarkRead
	// CommandCreateGroup creates a group room with the given participants.
	CommandCreateGroup
	// CommandCreatePrivateRoom finds or creates the private room with a peer.
	CommandCreatePrivateRoom
	// CommandRoomOnlineUsers reports which room participants are online.
	CommandRoomOnlineUsers
	// CommandUpdateStatus sets the identity's presence status (online/away).
	CommandUpdateStatus
)

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind

	Token          string
	RoomID         int64
	Content        string
	ReplyTo        *int64
	IsTyping       bool
	MessageIDs     []int64
	Name           string
	Description    string
	ParticipantIDs []int64
	PeerID         int64
	Status         store.Status
}
