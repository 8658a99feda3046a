package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/relaychat/relaychat-server/internal/core"
	"github.com/relaychat/relaychat-server/internal/store"
)

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	membership   *core.Membership
	store        store.Store
	historyLimit int
	log          *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(membership *core.Membership, st store.Store, historyLimit int, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		membership:   membership,
		store:        st,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// CreateRoomRequest represents the create group room request body.
type CreateRoomRequest struct {
	Name           string  `json:"name" binding:"required,min=1,max=64"`
	Description    string  `json:"description" binding:"omitempty,max=256"`
	ParticipantIDs []int64 `json:"participant_ids"`
}

// CreateDirectRoomRequest represents the create direct room request body.
type CreateDirectRoomRequest struct {
	PeerID int64 `json:"peer_id" binding:"required"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	CreatorID   int64  `json:"creator_id"`
	CreatedAt   string `json:"created_at"`
}

// RoomListItem is a room entry in the room list response, annotated with
// the caller's unread message count.
type RoomListItem struct {
	RoomResponse
	UnreadCount int `json:"unread_count"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID        int64  `json:"id"`
	RoomID    int64  `json:"room_id"`
	SenderID  int64  `json:"sender_id"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	ReplyToID *int64 `json:"reply_to_id,omitempty"`
	Edited    bool   `json:"edited"`
	CreatedAt string `json:"created_at"`
}

// CreateRoom handles group room creation.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	uid, ok := authenticatedUserID(c, h.log)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room, err := h.membership.CreateGroup(c.Request.Context(), uid, req.Name, req.Description, req.ParticipantIDs)
	if err != nil {
		writeDomainError(c, h.log, err, "failed to create room")
		return
	}

	h.log.Info().Str("room_name", room.Name).Int64("room_id", room.ID).Int64("creator_id", uid).Msg("room created successfully")
	c.JSON(http.StatusCreated, roomResponse(room))
}

// CreateDirectRoom handles direct (one-to-one) room creation.
// POST /api/rooms/direct
func (h *RoomHandlers) CreateDirectRoom(c *gin.Context) {
	uid, ok := authenticatedUserID(c, h.log)
	if !ok {
		return
	}

	var req CreateDirectRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create direct room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room, err := h.membership.CreatePrivateRoom(c.Request.Context(), uid, req.PeerID)
	if err != nil {
		writeDomainError(c, h.log, err, "failed to create direct room")
		return
	}

	c.JSON(http.StatusOK, roomResponse(room))
}

// ListRooms handles listing the caller's rooms.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	uid, ok := authenticatedUserID(c, h.log)
	if !ok {
		return
	}

	rooms, err := h.store.ListRoomsByParticipant(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]RoomListItem, 0, len(rooms))
	for _, room := range rooms {
		unread, err := h.store.UnreadCount(c.Request.Context(), room.ID, uid)
		if err != nil {
			h.log.Error().Err(err).Int64("room_id", room.ID).Msg("failed to count unread messages")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		response = append(response, RoomListItem{RoomResponse: roomResponse(room), UnreadCount: unread})
	}

	h.log.Debug().Int64("user_id", uid).Int("room_count", len(rooms)).Msg("rooms listed successfully")
	c.JSON(http.StatusOK, response)
}

// ListMessages handles paged message history for a room.
// GET /api/rooms/:id/messages?limit=50&before_id=123
func (h *RoomHandlers) ListMessages(c *gin.Context) {
	uid, ok := authenticatedUserID(c, h.log)
	if !ok {
		return
	}

	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
		return
	}

	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	var beforeID *int64
	if raw := c.Query("before_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before_id"})
			return
		}
		beforeID = &parsed
	}

	member, err := h.membership.IsParticipant(c.Request.Context(), roomID, uid)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to check participation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a room participant"})
		return
	}

	messages, err := h.store.ListRecentMessages(c.Request.Context(), roomID, limit, beforeID)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	// Newest-first from the store, oldest-first on the wire.
	response := make([]MessageResponse, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		response = append(response, messageResponse(messages[i]))
	}

	c.JSON(http.StatusOK, response)
}

func roomResponse(r *store.Room) RoomResponse {
	return RoomResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Type:        string(r.Type),
		CreatorID:   r.CreatorID,
		CreatedAt:   r.CreatedAt.Format(timeLayout),
	}
}

func messageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Type:      string(m.Type),
		Content:   m.Content,
		ReplyToID: m.ReplyToID,
		Edited:    m.Edited,
		CreatedAt: m.CreatedAt.Format(timeLayout),
	}
}

// writeDomainError maps a core error to an HTTP response.
func writeDomainError(c *gin.Context, logger *zerolog.Logger, err error, msg string) {
	var domainErr *core.Error
	if errors.As(err, &domainErr) {
		status := http.StatusBadRequest
		switch domainErr.Code {
		case core.ErrCodeRoomNotFound:
			status = http.StatusNotFound
		case core.ErrCodeAccessDenied:
			status = http.StatusForbidden
		case core.ErrCodeAlreadyParticipant:
			status = http.StatusConflict
		}
		c.JSON(status, ErrorResponse{Error: domainErr.Message})
		return
	}

	logger.Error().Err(err).Msg(msg)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
