package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/relaychat/relaychat-server/internal/store"
)

// Presence derives presence transitions and pushes them to affected rooms.
// The room list is queried fresh from the durable store rather than taken
// from the registry's transient subscription set: a status change must reach
// every room the identity belongs to, and delivery is naturally a no-op for
// rooms with no connected subscribers.
type Presence struct {
	registry *Registry
	store    store.RoomStore
	log      *zerolog.Logger
}

// NewPresence creates the presence broadcaster.
func NewPresence(registry *Registry, st store.RoomStore, logger *zerolog.Logger) *Presence {
	return &Presence{
		registry: registry,
		store:    st,
		log:      logger,
	}
}

// Broadcast pushes a user_status_changed event for the identity to every
// room it durably participates in, once per room.
func (p *Presence) Broadcast(ctx context.Context, userID int64, status store.Status) error {
	rooms, err := p.store.ListRoomsByParticipant(ctx, userID)
	if err != nil {
		return fmt.Errorf("list rooms for presence: %w", err)
	}

	for _, room := range rooms {
		ev := newEvent(EventUserStatusChanged)
		ev.RoomID = room.ID
		ev.UserID = userID
		ev.Status = status
		for _, c := range p.registry.FanoutTargets(room.ID) {
			c.send(ev)
		}
	}
	return nil
}
