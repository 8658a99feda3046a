package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeAuthenticate      = "authenticate"
	InboundTypeJoinRoom          = "join_room"
	InboundTypeLeaveRoom         = "leave_room"
	InboundTypeSendMessage       = "send_message"
	InboundTypeTyping            = "typing"
	InboundTypeMarkMessagesRead  = "mark_messages_read"
	InboundTypeCreateGroup       = "create_group"
	InboundTypeCreatePrivateRoom = "create_private_room"
	InboundTypeRoomOnlineUsers   = "get_room_online_users"
	InboundTypeUpdateStatus      = "update_status"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventAuthenticated     = "authenticated"
	EventAuthError         = "auth_error"
	EventRoomJoined        = "room_joined"
	EventRoomLeft          = "room_left"
	EventUserJoinedRoom    = "user_joined_room"
	EventUserLeftRoom      = "user_left_room"
	EventNewMessage        = "new_message"
	EventUserTyping        = "user_typing"
	EventUserStatusChanged = "user_status_changed"
	EventMessagesRead      = "messages_read"
	EventGroupCreated      = "group_created"
	EventRoomCreated       = "room_created"
	EventRoomOnlineUsers   = "room_online_users"
)

// AuthenticateData carries the bearer credential.
type AuthenticateData struct {
	Token string `json:"token"`
}

// RoomData addresses a single room.
type RoomData struct {
	RoomID int64 `json:"room_id"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	RoomID  int64  `json:"room_id"`
	Content string `json:"content"`
	ReplyTo *int64 `json:"reply_to,omitempty"`
}

// TypingData toggles the client's typing indicator in a room.
type TypingData struct {
	RoomID   int64 `json:"room_id"`
	IsTyping bool  `json:"is_typing"`
}

// MarkMessagesReadData records read receipts for the listed messages.
type MarkMessagesReadData struct {
	RoomID     int64   `json:"room_id"`
	MessageIDs []int64 `json:"message_ids"`
}

// CreateGroupData creates a group room.
type CreateGroupData struct {
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	ParticipantIDs []int64 `json:"participant_ids"`
}

// CreatePrivateRoomData finds or creates the private room with a peer.
type CreatePrivateRoomData struct {
	PeerID int64 `json:"peer_id"`
}

// UpdateStatusData sets the identity's presence status.
type UpdateStatusData struct {
	Status string `json:"status"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// User describes an identity in outbound payloads.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
	LastSeen    int64  `json:"last_seen"`
}

// Room describes a room in outbound payloads.
type Room struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Type         string `json:"type"`
	CreatorID    int64  `json:"creator_id"`
	LastActivity int64  `json:"last_activity"`
	CreatedAt    int64  `json:"created_at"`
}

// Message describes a chat message in outbound payloads.
type Message struct {
	ID        int64  `json:"id"`
	RoomID    int64  `json:"room_id"`
	SenderID  int64  `json:"sender_id"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	ReplyTo   *int64 `json:"reply_to,omitempty"`
	Edited    bool   `json:"edited,omitempty"`
	TS        int64  `json:"ts"`
}

// EventAuthenticatedData confirms authentication.
type EventAuthenticatedData struct {
	User  User   `json:"user"`
	Rooms []Room `json:"rooms"`
}

// EventAuthErrorData reports a failed authentication attempt.
type EventAuthErrorData struct {
	Message string `json:"message"`
}

// EventRoomJoinedData confirms a subscription and carries history, oldest first.
type EventRoomJoinedData struct {
	RoomID   int64     `json:"room_id"`
	Messages []Message `json:"messages"`
}

// EventRoomLeftData confirms an unsubscription.
type EventRoomLeftData struct {
	RoomID int64 `json:"room_id"`
}

// EventRoomUserData notifies about a user joining or leaving a room.
type EventRoomUserData struct {
	RoomID int64 `json:"room_id"`
	User   User  `json:"user"`
	TS     int64 `json:"ts"`
}

// EventNewMessageData delivers a chat message.
type EventNewMessageData struct {
	Message Message `json:"message"`
}

// EventUserTypingData relays a typing indicator.
type EventUserTypingData struct {
	RoomID   int64 `json:"room_id"`
	User     User  `json:"user"`
	IsTyping bool  `json:"is_typing"`
	TS       int64 `json:"ts"`
}

// EventUserStatusChangedData notifies about a presence transition.
type EventUserStatusChangedData struct {
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
	TS     int64  `json:"ts"`
}

// EventMessagesReadData notifies about new read receipts.
type EventMessagesReadData struct {
	RoomID     int64   `json:"room_id"`
	MessageIDs []int64 `json:"message_ids"`
	ReadBy     int64   `json:"read_by"`
	TS         int64   `json:"ts"`
}

// EventRoomCreatedData delivers a created room.
type EventRoomCreatedData struct {
	Room Room `json:"room"`
}

// EventRoomOnlineUsersData reports the online participants of a room.
type EventRoomOnlineUsersData struct {
	RoomID      int64  `json:"room_id"`
	OnlineUsers []User `json:"online_users"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
