package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when an insert violates a uniqueness guard,
	// e.g. two concurrent private-room creations for the same pair.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Status is a user presence status.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusAway    Status = "away"
)

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Status       Status
	LastSeen     time.Time
	IsActive     bool
	CreatedAt    time.Time
}

// RoomType defines different types of rooms.
type RoomType string

const (
	RoomTypePrivate RoomType = "private"
	RoomTypeGroup   RoomType = "group"
	RoomTypePublic  RoomType = "public"
)

// Role defines a participant's role within a room.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// Participant is a durable membership record in a room.
type Participant struct {
	UserID   int64
	Role     Role
	JoinedAt time.Time
}

// RoomSettings holds per-room behavior knobs.
type RoomSettings struct {
	AllowInvites    bool
	IsPublic        bool
	MaxParticipants int
}

const (
	// DefaultMaxParticipants is applied to rooms created without an explicit limit.
	DefaultMaxParticipants = 100
	// HardMaxParticipants is the cap no room may exceed.
	HardMaxParticipants = 1000
	// PrivateRoomCapacity is the fixed participant limit of private rooms.
	PrivateRoomCapacity = 2
)

// Room represents a chat room.
type Room struct {
	ID           int64
	Name         string
	Description  string
	Type         RoomType
	CreatorID    int64
	DirectKey    *string // for private rooms: "dm:{minUserID}:{maxUserID}"
	IsActive     bool
	Settings     RoomSettings
	LastActivity time.Time
	CreatedAt    time.Time
}

// MessageType defines the kind of message payload.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	RoomID    int64
	SenderID  int64
	Content   string
	Type      MessageType
	ReplyToID *int64
	Edited    bool
	EditedAt  *time.Time
	CreatedAt time.Time
}

// ReadReceipt records that a user has read a message. At most one receipt
// exists per (message, user) pair.
type ReadReceipt struct {
	MessageID int64
	UserID    int64
	ReadAt    time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, displayName, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// FilterActiveUsers returns the subset of ids that belong to existing,
	// active users, preserving input order and dropping duplicates.
	FilterActiveUsers(ctx context.Context, ids []int64) ([]int64, error)

	// UpdateUserPresence sets a user's presence status and last-seen timestamp.
	UpdateUserPresence(ctx context.Context, id int64, status Status, lastSeen time.Time) error
}

// RoomStore handles room and participant persistence.
type RoomStore interface {
	// CreateRoom inserts a room and its initial participants in one transaction.
	CreateRoom(ctx context.Context, room *Room, participants []Participant) (*Room, error)

	// CreatePrivateRoom creates a private room between two users keyed by
	// directKey, adding both as members. Returns an error wrapping
	// ErrDuplicateKey when a room with the same directKey already exists.
	CreatePrivateRoom(ctx context.Context, directKey string, userA, userB int64) (*Room, error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// GetRoomByDirectKey retrieves a private room by its direct key.
	GetRoomByDirectKey(ctx context.Context, directKey string) (*Room, error)

	// ListRoomsByParticipant lists all rooms the user is a participant of,
	// most recently active first.
	ListRoomsByParticipant(ctx context.Context, userID int64) ([]*Room, error)

	// ListParticipants lists all participants of a room ordered by join time.
	ListParticipants(ctx context.Context, roomID int64) ([]Participant, error)

	// IsParticipant checks whether the user has a membership record in the room.
	IsParticipant(ctx context.Context, roomID, userID int64) (bool, error)

	// CountParticipants returns the number of participants in a room.
	CountParticipants(ctx context.Context, roomID int64) (int, error)

	// AddParticipant adds a membership record with the given role.
	AddParticipant(ctx context.Context, roomID, userID int64, role Role) error

	// RemoveParticipant deletes the membership record.
	RemoveParticipant(ctx context.Context, roomID, userID int64) error

	// SetParticipantRole changes the role on an existing membership record.
	SetParticipantRole(ctx context.Context, roomID, userID int64, role Role) error

	// TouchRoom bumps a room's last-activity timestamp.
	TouchRoom(ctx context.Context, roomID int64) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and fills in its ID and creation time.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// ListRecentMessages retrieves up to limit messages of a room, newest
	// first. If beforeID is set, only messages older than that ID are returned.
	ListRecentMessages(ctx context.Context, roomID int64, limit int, beforeID *int64) ([]*Message, error)

	// MarkMessageRead records a read receipt. Returns false when the receipt
	// already existed; the operation is idempotent.
	MarkMessageRead(ctx context.Context, messageID, userID int64) (bool, error)

	// UnreadCount counts messages in the room not sent by the user and not
	// yet read by them.
	UnreadCount(ctx context.Context, roomID, userID int64) (int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
