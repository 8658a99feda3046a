package core

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/relaychat/relaychat-server/internal/store"
)

const (
	// maxMessageLen is the content length cap in characters.
	maxMessageLen = 1000
	// DefaultHistoryLimit is the number of messages delivered on room join.
	DefaultHistoryLimit = 50
)

// CredentialVerifier resolves a bearer credential to an identity.
type CredentialVerifier interface {
	Verify(ctx context.Context, token string) (*store.User, error)
}

// Router is the event-routing core. It receives inbound commands on a
// connection, validates them against the registry and membership authority,
// mutates the durable store, and fans out events to the right connection
// sets. Every state mutation that affects visibility is applied before the
// corresponding broadcast is emitted.
type Router struct {
	registry     *Registry
	membership   *Membership
	presence     *Presence
	store        store.Store
	verifier     CredentialVerifier
	log          *zerolog.Logger
	historyLimit int
}

// NewRouter wires the routing core together. historyLimit <= 0 falls back to
// DefaultHistoryLimit.
func NewRouter(registry *Registry, membership *Membership, presence *Presence, st store.Store, verifier CredentialVerifier, logger *zerolog.Logger, historyLimit int) *Router {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Router{
		registry:     registry,
		membership:   membership,
		presence:     presence,
		store:        st,
		verifier:     verifier,
		log:          logger,
		historyLimit: historyLimit,
	}
}

// Registry exposes the connection registry, mainly for transports and tests.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Membership exposes the membership authority for the REST edge.
func (r *Router) Membership() *Membership {
	return r.membership
}

// Serve processes the client's commands in arrival order until the context
// is canceled or the command channel closes, then runs disconnect cleanup.
// One Serve loop runs per connection; operations from different connections
// proceed concurrently.
func (r *Router) Serve(ctx context.Context, c *Client) {
	defer r.Disconnect(context.WithoutCancel(ctx), c)

	for {
		select {
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			r.dispatch(ctx, c, cmd)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) dispatch(ctx context.Context, c *Client, cmd *Command) {
	if c.State() == StateClosed {
		return
	}
	if cmd.Kind != CommandAuthenticate && c.State() != StateAuthenticated {
		c.send(errorEvent(domainError(ErrCodeNotAuthenticated, "authenticate first")))
		return
	}

	switch cmd.Kind {
	case CommandAuthenticate:
		r.handleAuthenticate(ctx, c, cmd.Token)
	case CommandJoinRoom:
		r.handleJoinRoom(ctx, c, cmd.RoomID)
	case CommandLeaveRoom:
		r.handleLeaveRoom(ctx, c, cmd.RoomID)
	case CommandSendMessage:
		r.handleSendMessage(ctx, c, cmd)
	case CommandTyping:
		r.handleTyping(c, cmd.RoomID, cmd.IsTyping)
	case CommandMarkRead:
		r.handleMarkRead(ctx, c, cmd.RoomID, cmd.MessageIDs)
	case CommandCreateGroup:
		r.handleCreateGroup(ctx, c, cmd)
	case CommandCreatePrivateRoom:
		r.handleCreatePrivateRoom(ctx, c, cmd.PeerID)
	case CommandRoomOnlineUsers:
		r.handleRoomOnlineUsers(ctx, c, cmd.RoomID)
	case CommandUpdateStatus:
		r.handleUpdateStatus(ctx, c, cmd.Status)
	default:
		c.send(errorEvent(domainError(ErrCodeInvalidMessage, "unknown command")))
	}
}

// domainErr maps any error onto the client-visible taxonomy. Non-domain
// errors are logged and surfaced as a generic internal failure.
func (r *Router) domainErr(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	r.log.Error().Err(err).Msg("collaborator failure")
	return errInternal()
}

func (r *Router) handleAuthenticate(ctx context.Context, c *Client, token string) {
	// A connection is bound to one identity for its lifetime. Re-binding
	// would leave the first identity's registry entry pointing at this
	// connection with no disconnect to ever report it offline.
	if c.State() == StateAuthenticated {
		c.send(errorEvent(domainError(ErrCodeInvalidMessage, "already authenticated")))
		return
	}

	user, err := r.verifier.Verify(ctx, token)
	if err != nil {
		ev := newEvent(EventAuthError)
		ev.Err = domainError(ErrCodeAuthFailed, "authentication failed")
		c.send(ev)
		return
	}

	rooms, err := r.store.ListRoomsByParticipant(ctx, user.ID)
	if err != nil {
		r.log.Error().Err(err).Int64("user_id", user.ID).Msg("load rooms on authenticate")
		ev := newEvent(EventAuthError)
		ev.Err = domainError(ErrCodeAuthFailed, "authentication failed")
		c.send(ev)
		return
	}

	cameOnline := r.registry.Admit(user.ID, c)
	for _, room := range rooms {
		r.registry.JoinRoom(user.ID, room.ID)
	}

	// Only the first connection flips the durable status. Further devices
	// of an identity that set itself away must not silently force it back
	// to online with no broadcast.
	if cameOnline {
		now := time.Now()
		if err := r.store.UpdateUserPresence(ctx, user.ID, store.StatusOnline, now); err != nil {
			r.log.Warn().Err(err).Int64("user_id", user.ID).Msg("mark user online")
		}
		user.Status = store.StatusOnline
		user.LastSeen = now
	}
	c.setAuthenticated(user)

	ev := newEvent(EventAuthenticated)
	ev.User = user
	ev.Rooms = rooms
	c.send(ev)

	if cameOnline {
		if err := r.presence.Broadcast(ctx, user.ID, store.StatusOnline); err != nil {
			r.log.Warn().Err(err).Int64("user_id", user.ID).Msg("broadcast online presence")
		}
	}
}

func (r *Router) handleJoinRoom(ctx context.Context, c *Client, roomID int64) {
	if _, err := r.loadRoom(ctx, roomID); err != nil {
		c.send(errorEvent(r.domainErr(err)))
		return
	}
	if err := r.requireParticipant(ctx, roomID, c.UserID()); err != nil {
		c.send(errorEvent(r.domainErr(err)))
		return
	}

	r.registry.JoinRoom(c.UserID(), roomID)

	messages, err := r.store.ListRecentMessages(ctx, roomID, r.historyLimit, nil)
	if err != nil {
		c.send(errorEvent(r.domainErr(err)))
		return
	}
	// Stored newest-first; deliver oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	joined := newEvent(EventRoomJoined)
	joined.RoomID = roomID
	joined.Messages = messages
	c.send(joined)

	notify := newEvent(EventUserJoinedRoom)
	notify.RoomID = roomID
	notify.User = c.User()
	r.fanout(roomID, notify, c.UserID())
}

func (r *Router) handleLeaveRoom(ctx context.Context, c *Client, roomID int64) {
	if _, err := r.loadRoom(ctx, roomID); err != nil {
		c.send(errorEvent(r.domainErr(err)))
		return
	}

	r.registry.LeaveRoom(c.UserID(), roomID)

	notify := newEvent(EventUserLeftRoom)
	notify.RoomID = roomID
	notify.User = c.User()
	r.fanout(roomID, notify, c.UserID())

	left := newEvent(EventRoomLeft)
	left.RoomID = roomID
	c.send(left)
}

func (r *Router) handleSendMessage(ctx context.Context, c *Client, cmd *Command) {
	// Authorization before input validation: a non-participant must not be
	// able to distinguish a room's validation rules from its access policy.
	if _, err := r.loadRoom(ctx, cmd.RoomID); err != nil {
		c.send(errorEvent(r.domainErr(err)))
		return
	}
	if err := r.requireParticipant(ctx, cmd.RoomID, c.UserID()); err != nil {
		c.send(errorEvent(r.domainErr(err)))
		return
	}

	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		c.send(errorEvent(domainError(ErrCodeInvalidMessage, "message is empty")))
		return
	}
	if utf8.RuneCountInString(content) > maxMessageLen {
		c.send(errorEvent(domainError(ErrCodeInvalidMessage, "message is too long")))
		return
	}

	// A reply-to referencing a missing message, or one from another room,
	// is stored as null rather than rejected.
	replyTo := cmd.ReplyTo
	if replyTo != nil {
		orig, err := r.store.GetMessage(ctx, *replyTo)
		if err != nil || orig.RoomID != cmd.RoomID {
			replyTo = nil
		}
	}

	msg := &store.Message{
		RoomID:    cmd.RoomID,
		SenderID:  c.UserID(),
		Content:   content,
		Type:      store.MessageTypeText,
		ReplyToID: replyTo,
	}
	if err := r.store.SaveMessage(ctx, msg); err != nil {
		// No notification without a successful state change.
		c.send(errorEvent(r.domainErr(err)))
		return
	}
	if err := r.store.TouchRoom(ctx, cmd.RoomID); err != nil {
		r.log.Warn().Err(err).Int64("room_id", cmd.RoomID).Msg("failed to bump room activity")
	}

	ev := newEvent(EventNewMessage)
	ev.RoomID = cmd.RoomID
	ev.Message = msg
	// Delivered to every subscriber, sender included, for consistent local echo.
	r.fanout(cmd.RoomID, ev, 0)
}

func (r *Router) handleTyping(c *Client, roomID int64, isTyping bool) {
	ev := newEvent(EventUserTyping)
	ev.RoomID = roomID
	ev.User = c.User()
	ev.IsTyping = isTyping
	r.fanout(roomID, ev, c.UserID())
}

func (r *Router) handleMarkRead(ctx context.Context, c *Client, roomID int64, messageIDs []int64) {
	if _, err := r.loadRoom(ctx, roomID); err != nil {
		c.send(errorEvent(r.domainErr(err)))
		return
	}
	if err := r.requireParticipant(ctx, roomID, c.UserID()); err != nil {
		c.send(errorEvent(r.domainErr(err)))
		return
	}

	var applied []int64
	for _, id := range messageIDs {
		msg, err := r.store.GetMessage(ctx, id)
		if err != nil {
			continue
		}
		if msg.RoomID != roomID || msg.SenderID == c.UserID() {
			continue
		}
		inserted, err := r.store.MarkMessageRead(ctx, id, c.UserID())
		if err != nil {
			r.log.Warn().Err(err).Int64("message_id", id).Msg("record read receipt")
			continue
		}
		if inserted {
			applied = append(applied, id)
		}
	}

	if len(applied) == 0 {
		return
	}
	ev := newEvent(EventMessagesRead)
	ev.RoomID = roomID
	ev.MessageIDs = applied
	ev.ReadBy = c.UserID()
	r.fanout(roomID, ev, c.UserID())
}

func (r *Router) handleCreateGroup(ctx context.Context, c *Client, cmd *Command) {
	room, err := r.membership.CreateGroup(ctx, c.UserID(), cmd.Name, cmd.Description, cmd.ParticipantIDs)
	if err != nil {
		c.send(errorEvent(r.domainErr(err)))
		return
	}

	participants, err := r.store.ListParticipants(ctx, room.ID)
	if err != nil {
		r.log.Warn().Err(err).Int64("room_id", room.ID).Msg("list participants of new group")
	}
	// Subscribe connected participants before anyone is told the room exists.
	for _, p := range participants {
		if r.registry.Online(p.UserID) {
			r.registry.JoinRoom(p.UserID, room.ID)
		}
	}

	ev := newEvent(EventGroupCreated)
	ev.Room = room
	c.send(ev)
	for _, p := range participants {
		for _, conn := range r.registry.ConnectionsFor(p.UserID) {
			if conn != c {
				conn.send(ev)
			}
		}
	}
}

func (r *Router) handleCreatePrivateRoom(ctx context.Context, c *Client, peerID int64) {
	room, err := r.membership.CreatePrivateRoom(ctx, c.UserID(), peerID)
	if err != nil {
		c.send(errorEvent(r.domainErr(err)))
		return
	}

	r.registry.JoinRoom(c.UserID(), room.ID)
	if r.registry.Online(peerID) {
		r.registry.JoinRoom(peerID, room.ID)
	}

	ev := newEvent(EventRoomCreated)
	ev.Room = room
	c.send(ev)
}

func (r *Router) handleRoomOnlineUsers(ctx context.Context, c *Client, roomID int64) {
	if _, err := r.loadRoom(ctx, roomID); err != nil {
		c.send(errorEvent(r.domainErr(err)))
		return
	}
	if err := r.requireParticipant(ctx, roomID, c.UserID()); err != nil {
		c.send(errorEvent(r.domainErr(err)))
		return
	}

	participants, err := r.store.ListParticipants(ctx, roomID)
	if err != nil {
		c.send(errorEvent(r.domainErr(err)))
		return
	}

	var online []*store.User
	for _, p := range participants {
		if !r.registry.Online(p.UserID) {
			continue
		}
		user, err := r.store.GetUserByID(ctx, p.UserID)
		if err != nil {
			continue
		}
		online = append(online, user)
	}

	ev := newEvent(EventRoomOnlineUsers)
	ev.RoomID = roomID
	ev.Users = online
	c.send(ev)
}

func (r *Router) handleUpdateStatus(ctx context.Context, c *Client, status store.Status) {
	if status != store.StatusOnline && status != store.StatusAway {
		c.send(errorEvent(domainError(ErrCodeInvalidMessage, "invalid status")))
		return
	}

	now := time.Now()
	if err := r.store.UpdateUserPresence(ctx, c.UserID(), status, now); err != nil {
		c.send(errorEvent(r.domainErr(err)))
		return
	}
	if user := c.User(); user != nil {
		user.Status = status
		user.LastSeen = now
	}

	if err := r.presence.Broadcast(ctx, c.UserID(), status); err != nil {
		r.log.Warn().Err(err).Int64("user_id", c.UserID()).Msg("broadcast status change")
	}
}

// Disconnect dismisses the connection from the registry; when it was the
// identity's last connection the identity is marked offline and its rooms
// are told. Safe to call more than once.
func (r *Router) Disconnect(ctx context.Context, c *Client) {
	if c.State() == StateClosed {
		return
	}
	userID, wentOffline := r.registry.Dismiss(c)
	c.setClosed()

	if userID == 0 || !wentOffline {
		return
	}

	now := time.Now()
	if err := r.store.UpdateUserPresence(ctx, userID, store.StatusOffline, now); err != nil {
		r.log.Warn().Err(err).Int64("user_id", userID).Msg("mark user offline")
	}
	if err := r.presence.Broadcast(ctx, userID, store.StatusOffline); err != nil {
		r.log.Warn().Err(err).Int64("user_id", userID).Msg("broadcast offline presence")
	}
}

// loadRoom resolves a room id, translating a missing record into the
// client-visible room_not_found error.
func (r *Router) loadRoom(ctx context.Context, roomID int64) (*store.Room, error) {
	room, err := r.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainError(ErrCodeRoomNotFound, "room not found")
		}
		return nil, err
	}
	return room, nil
}

func (r *Router) requireParticipant(ctx context.Context, roomID, userID int64) error {
	ok, err := r.membership.IsParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domainError(ErrCodeAccessDenied, "not a participant of this room")
	}
	return nil
}

// fanout delivers an event to every connection subscribed to the room,
// skipping connections owned by excludeUser when non-zero.
func (r *Router) fanout(roomID int64, ev *Event, excludeUser int64) {
	for _, target := range r.registry.FanoutTargets(roomID) {
		if excludeUser != 0 && target.UserID() == excludeUser {
			continue
		}
		target.send(ev)
	}
}
