package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/relaychat/relaychat-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function after the
// schema is applied. Useful for tests to seed fixture data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// mapConstraintErr converts a SQLite uniqueness violation into
// store.ErrDuplicateKey so callers can reconcile concurrent inserts.
// Composite primary keys report ErrConstraintPrimaryKey for the same thing.
func mapConstraintErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %v", store.ErrDuplicateKey, err)
	}
	return err
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, displayName, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, display_name, password_hash, status)
		VALUES (?, ?, ?, 'offline')
	`
	result, err := s.db.ExecContext(ctx, query, username, displayName, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", mapConstraintErr(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

const userColumns = `id, username, display_name, password_hash, status, last_seen, is_active, created_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Status,
		&user.LastSeen,
		&user.IsActive,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// FilterActiveUsers returns the subset of ids that belong to existing, active
// users, preserving input order and dropping duplicates.
func (s *SQLiteStore) FilterActiveUsers(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `SELECT id FROM users WHERE is_active = 1 AND id IN (` + placeholders + `)`

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query active users: %w", err)
	}
	defer rows.Close()

	active := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		active[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	filtered := make([]int64, 0, len(active))
	for _, id := range ids {
		if _, ok := active[id]; ok {
			filtered = append(filtered, id)
			delete(active, id)
		}
	}
	return filtered, nil
}

// UpdateUserPresence sets a user's presence status and last-seen timestamp.
func (s *SQLiteStore) UpdateUserPresence(ctx context.Context, id int64, status store.Status, lastSeen time.Time) error {
	query := `UPDATE users SET status = ?, last_seen = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, status, lastSeen.UTC(), id)
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// ==== RoomStore implementation ====

const roomColumns = `id, name, description, type, creator_id, direct_key, is_active,
	allow_invites, is_public, max_participants, last_activity, created_at`

func scanRoom(row interface{ Scan(dest ...any) error }) (*store.Room, error) {
	var room store.Room
	var directKey sql.NullString
	err := row.Scan(
		&room.ID,
		&room.Name,
		&room.Description,
		&room.Type,
		&room.CreatorID,
		&directKey,
		&room.IsActive,
		&room.Settings.AllowInvites,
		&room.Settings.IsPublic,
		&room.Settings.MaxParticipants,
		&room.LastActivity,
		&room.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if directKey.Valid {
		room.DirectKey = &directKey.String
	}
	return &room, nil
}

// CreateRoom inserts a room and its initial participants in one transaction.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *store.Room, participants []store.Participant) (*store.Room, error) {
	maxParticipants := room.Settings.MaxParticipants
	if maxParticipants <= 0 {
		maxParticipants = store.DefaultMaxParticipants
	}
	if maxParticipants > store.HardMaxParticipants {
		maxParticipants = store.HardMaxParticipants
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO rooms (name, description, type, creator_id, direct_key, allow_invites, is_public, max_participants)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, query,
		room.Name, room.Description, room.Type, room.CreatorID, room.DirectKey,
		room.Settings.AllowInvites, room.Settings.IsPublic, maxParticipants)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", mapConstraintErr(err))
	}

	roomID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	memberQuery := `INSERT INTO room_participants (room_id, user_id, role) VALUES (?, ?, ?)`
	for _, p := range participants {
		if _, err := tx.ExecContext(ctx, memberQuery, roomID, p.UserID, p.Role); err != nil {
			return nil, fmt.Errorf("insert participant %d: %w", p.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetRoomByID(ctx, roomID)
}

// CreatePrivateRoom creates a private room between two users keyed by directKey.
// The UNIQUE constraint on direct_key is the guard against concurrent duplicate
// creation; violations surface as store.ErrDuplicateKey.
func (s *SQLiteStore) CreatePrivateRoom(ctx context.Context, directKey string, userA, userB int64) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	roomName := fmt.Sprintf("dm-%d-%d", userA, userB)
	query := `
		INSERT INTO rooms (name, type, creator_id, direct_key, allow_invites, max_participants)
		VALUES (?, 'private', ?, ?, 0, ?)
	`
	result, err := tx.ExecContext(ctx, query, roomName, userA, directKey, store.PrivateRoomCapacity)
	if err != nil {
		return nil, fmt.Errorf("insert private room: %w", mapConstraintErr(err))
	}

	roomID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	memberQuery := `INSERT INTO room_participants (room_id, user_id, role) VALUES (?, ?, 'member')`
	if _, err := tx.ExecContext(ctx, memberQuery, roomID, userA); err != nil {
		return nil, fmt.Errorf("add first participant: %w", err)
	}
	if _, err := tx.ExecContext(ctx, memberQuery, roomID, userB); err != nil {
		return nil, fmt.Errorf("add second participant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetRoomByID(ctx, roomID)
}

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = ?`
	room, err := scanRoom(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return room, nil
}

// GetRoomByDirectKey retrieves a private room by its direct key.
func (s *SQLiteStore) GetRoomByDirectKey(ctx context.Context, directKey string) (*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE direct_key = ?`
	room, err := scanRoom(s.db.QueryRowContext(ctx, query, directKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %q: %w", directKey, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return room, nil
}

// ListRoomsByParticipant lists all rooms the user is a participant of.
func (s *SQLiteStore) ListRoomsByParticipant(ctx context.Context, userID int64) ([]*store.Room, error) {
	query := `
		SELECT r.id, r.name, r.description, r.type, r.creator_id, r.direct_key, r.is_active,
			r.allow_invites, r.is_public, r.max_participants, r.last_activity, r.created_at
		FROM rooms r
		JOIN room_participants rp ON r.id = rp.room_id
		WHERE rp.user_id = ? AND r.is_active = 1
		ORDER BY r.last_activity DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// ListParticipants lists all participants of a room ordered by join time.
func (s *SQLiteStore) ListParticipants(ctx context.Context, roomID int64) ([]store.Participant, error) {
	query := `
		SELECT user_id, role, joined_at
		FROM room_participants
		WHERE room_id = ?
		ORDER BY joined_at, user_id
	`
	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []store.Participant
	for rows.Next() {
		var p store.Participant
		if err := rows.Scan(&p.UserID, &p.Role, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// IsParticipant checks whether the user has a membership record in the room.
func (s *SQLiteStore) IsParticipant(ctx context.Context, roomID, userID int64) (bool, error) {
	query := `SELECT 1 FROM room_participants WHERE room_id = ? AND user_id = ?`
	var exists int
	err := s.db.QueryRowContext(ctx, query, roomID, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}

// CountParticipants returns the number of participants in a room.
func (s *SQLiteStore) CountParticipants(ctx context.Context, roomID int64) (int, error) {
	query := `SELECT COUNT(*) FROM room_participants WHERE room_id = ?`
	var count int
	if err := s.db.QueryRowContext(ctx, query, roomID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return count, nil
}

// AddParticipant adds a membership record with the given role.
func (s *SQLiteStore) AddParticipant(ctx context.Context, roomID, userID int64, role store.Role) error {
	query := `INSERT INTO room_participants (room_id, user_id, role) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, roomID, userID, role); err != nil {
		return fmt.Errorf("insert participant: %w", mapConstraintErr(err))
	}
	return nil
}

// RemoveParticipant deletes the membership record.
func (s *SQLiteStore) RemoveParticipant(ctx context.Context, roomID, userID int64) error {
	query := `DELETE FROM room_participants WHERE room_id = ? AND user_id = ?`
	result, err := s.db.ExecContext(ctx, query, roomID, userID)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("participant %d in room %d: %w", userID, roomID, store.ErrNotFound)
	}
	return nil
}

// SetParticipantRole changes the role on an existing membership record.
func (s *SQLiteStore) SetParticipantRole(ctx context.Context, roomID, userID int64, role store.Role) error {
	query := `UPDATE room_participants SET role = ? WHERE room_id = ? AND user_id = ?`
	result, err := s.db.ExecContext(ctx, query, role, roomID, userID)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("participant %d in room %d: %w", userID, roomID, store.ErrNotFound)
	}
	return nil
}

// TouchRoom bumps a room's last-activity timestamp.
func (s *SQLiteStore) TouchRoom(ctx context.Context, roomID int64) error {
	query := `UPDATE rooms SET last_activity = CURRENT_TIMESTAMP WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, roomID)
	if err != nil {
		return fmt.Errorf("touch room: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("room %d: %w", roomID, store.ErrNotFound)
	}
	return nil
}

// ==== MessageStore implementation ====

const messageColumns = `id, room_id, sender_id, content, type, reply_to_id, edited, edited_at, created_at`

func scanMessage(row interface{ Scan(dest ...any) error }) (*store.Message, error) {
	var msg store.Message
	var replyTo sql.NullInt64
	var editedAt sql.NullTime
	err := row.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.SenderID,
		&msg.Content,
		&msg.Type,
		&replyTo,
		&msg.Edited,
		&editedAt,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if replyTo.Valid {
		msg.ReplyToID = &replyTo.Int64
	}
	if editedAt.Valid {
		msg.EditedAt = &editedAt.Time
	}
	return &msg, nil
}

// SaveMessage persists a message and fills in its ID and creation time.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.Type == "" {
		msg.Type = store.MessageTypeText
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (room_id, sender_id, content, type, reply_to_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.RoomID, msg.SenderID, msg.Content, msg.Type, msg.ReplyToID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// ListRecentMessages retrieves up to limit messages of a room, newest first.
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, roomID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE room_id = ?`
	args := []any{roomID}
	if beforeID != nil {
		query += ` AND id < ?`
		args = append(args, *beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkMessageRead records a read receipt. Returns false when the receipt
// already existed.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, messageID, userID int64) (bool, error) {
	query := `INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)`
	result, err := s.db.ExecContext(ctx, query, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("insert read receipt: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// UnreadCount counts messages in the room not sent by the user and not yet
// read by them.
func (s *SQLiteStore) UnreadCount(ctx context.Context, roomID, userID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		WHERE m.room_id = ?
		  AND m.sender_id != ?
		  AND NOT EXISTS (
			SELECT 1 FROM message_reads r
			WHERE r.message_id = m.id AND r.user_id = ?
		  )
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, roomID, userID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}
