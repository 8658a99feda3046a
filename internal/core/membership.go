package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/relaychat/relaychat-server/internal/store"
)

const membershipCacheSize = 4096

// Membership is the room membership authority: it validates and mutates room
// participant lists and is the only writer of durable membership.
type Membership struct {
	store store.Store
	cache *lru.Cache // "{roomID}:{userID}" -> bool
	log   *zerolog.Logger
}

// NewMembership creates the membership authority backed by the durable store.
func NewMembership(st store.Store, logger *zerolog.Logger) *Membership {
	cache, _ := lru.New(membershipCacheSize)
	return &Membership{
		store: st,
		cache: cache,
		log:   logger,
	}
}

func membershipKey(roomID, userID int64) string {
	return fmt.Sprintf("%d:%d", roomID, userID)
}

// IsParticipant is the authorization check for room-scoped operations,
// read-through cached. The cache stays coherent because all participant
// mutations go through this authority.
func (m *Membership) IsParticipant(ctx context.Context, roomID, userID int64) (bool, error) {
	key := membershipKey(roomID, userID)
	if v, ok := m.cache.Get(key); ok {
		return v.(bool), nil
	}

	ok, err := m.store.IsParticipant(ctx, roomID, userID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	m.cache.Add(key, ok)
	return ok, nil
}

// DirectKey derives the deduplication key for a private room between two
// users; it is the same for either argument order.
func DirectKey(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("dm:%d:%d", userA, userB)
}

// CreatePrivateRoom returns the existing private room between the pair if one
// exists, else creates one with both users as members. Safe under concurrent
// calls for the same pair: a losing writer observes the uniqueness conflict
// and retries the lookup.
func (m *Membership) CreatePrivateRoom(ctx context.Context, userA, userB int64) (*store.Room, error) {
	if userA == userB {
		return nil, domainError(ErrCodeInvalidMessage, "cannot open a private room with yourself")
	}

	peer, err := m.store.GetUserByID(ctx, userB)
	if err != nil || !peer.IsActive {
		return nil, domainError(ErrCodeInvalidMessage, "unknown user")
	}

	key := DirectKey(userA, userB)
	room, err := m.store.GetRoomByDirectKey(ctx, key)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup private room: %w", err)
	}

	room, err = m.store.CreatePrivateRoom(ctx, key, userA, userB)
	if err == nil {
		m.cache.Add(membershipKey(room.ID, userA), true)
		m.cache.Add(membershipKey(room.ID, userB), true)
		return room, nil
	}
	if errors.Is(err, store.ErrDuplicateKey) {
		// Lost the race; the winner's room is there now.
		return m.store.GetRoomByDirectKey(ctx, key)
	}
	return nil, fmt.Errorf("create private room: %w", err)
}

// CreateGroup creates a group room. The creator becomes admin; participant
// ids are filtered to existing, active users and unknown ids are silently
// dropped.
func (m *Membership) CreateGroup(ctx context.Context, creatorID int64, name, description string, participantIDs []int64) (*store.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(ErrCodeInvalidMessage, "group name is required")
	}

	valid, err := m.store.FilterActiveUsers(ctx, participantIDs)
	if err != nil {
		return nil, fmt.Errorf("filter participants: %w", err)
	}

	participants := make([]store.Participant, 0, len(valid)+1)
	participants = append(participants, store.Participant{UserID: creatorID, Role: store.RoleAdmin})
	for _, id := range valid {
		if id == creatorID {
			continue
		}
		participants = append(participants, store.Participant{UserID: id, Role: store.RoleMember})
	}

	if len(participants) > store.DefaultMaxParticipants {
		return nil, domainError(ErrCodeParticipantLimit, "too many participants")
	}

	room, err := m.store.CreateRoom(ctx, &store.Room{
		Name:        name,
		Description: strings.TrimSpace(description),
		Type:        store.RoomTypeGroup,
		CreatorID:   creatorID,
		Settings: store.RoomSettings{
			AllowInvites:    true,
			MaxParticipants: store.DefaultMaxParticipants,
		},
	}, participants)
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	for _, p := range participants {
		m.cache.Add(membershipKey(room.ID, p.UserID), true)
	}
	return room, nil
}

// AddParticipant adds a user to a room with the given role. Fails with
// already_participant or participant_limit_exceeded before persistence.
func (m *Membership) AddParticipant(ctx context.Context, roomID, userID int64, role store.Role) error {
	room, err := m.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domainError(ErrCodeRoomNotFound, "room not found")
		}
		return fmt.Errorf("load room: %w", err)
	}

	already, err := m.IsParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if already {
		return domainError(ErrCodeAlreadyParticipant, "user is already a participant")
	}

	count, err := m.store.CountParticipants(ctx, roomID)
	if err != nil {
		return fmt.Errorf("count participants: %w", err)
	}
	limit := room.Settings.MaxParticipants
	if room.Type == store.RoomTypePrivate {
		limit = store.PrivateRoomCapacity
	}
	if count >= limit {
		return domainError(ErrCodeParticipantLimit, "participant limit exceeded")
	}

	if role == "" {
		role = store.RoleMember
	}
	if err := m.store.AddParticipant(ctx, roomID, userID, role); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return domainError(ErrCodeAlreadyParticipant, "user is already a participant")
		}
		return fmt.Errorf("add participant: %w", err)
	}
	m.cache.Add(membershipKey(roomID, userID), true)

	if err := m.store.TouchRoom(ctx, roomID); err != nil {
		m.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to bump room activity")
	}
	return nil
}

// RemoveParticipant removes a user's membership record.
func (m *Membership) RemoveParticipant(ctx context.Context, roomID, userID int64) error {
	ok, err := m.IsParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domainError(ErrCodeNotParticipant, "user is not a participant")
	}

	if err := m.store.RemoveParticipant(ctx, roomID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domainError(ErrCodeNotParticipant, "user is not a participant")
		}
		return fmt.Errorf("remove participant: %w", err)
	}
	m.cache.Remove(membershipKey(roomID, userID))

	if err := m.store.TouchRoom(ctx, roomID); err != nil {
		m.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to bump room activity")
	}
	return nil
}

// SetRole changes a participant's role.
func (m *Membership) SetRole(ctx context.Context, roomID, userID int64, role store.Role) error {
	ok, err := m.IsParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domainError(ErrCodeNotParticipant, "user is not a participant")
	}

	if err := m.store.SetParticipantRole(ctx, roomID, userID, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domainError(ErrCodeNotParticipant, "user is not a participant")
		}
		return fmt.Errorf("set role: %w", err)
	}

	if err := m.store.TouchRoom(ctx, roomID); err != nil {
		m.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to bump room activity")
	}
	return nil
}
