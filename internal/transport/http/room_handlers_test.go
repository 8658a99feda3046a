package http

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaychat/relaychat-server/internal/store"
)

func TestCreateAndListRooms(t *testing.T) {
	ts, _ := newTestServer(t)
	aliceToken, _ := registerUser(t, ts, "alice")
	_, bobID := registerUser(t, ts, "bob")

	var room RoomResponse
	status := doJSON(t, ts, http.MethodPost, "/api/rooms", aliceToken, CreateRoomRequest{
		Name:           "team",
		Description:    "the team",
		ParticipantIDs: []int64{bobID},
	}, &room)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "team", room.Name)
	assert.Equal(t, string(store.RoomTypeGroup), room.Type)

	var rooms []RoomListItem
	status = doJSON(t, ts, http.MethodGet, "/api/rooms", aliceToken, nil, &rooms)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)
	assert.Equal(t, 0, rooms[0].UnreadCount)

	// A blank name fails binding.
	status = doJSON(t, ts, http.MethodPost, "/api/rooms", aliceToken, CreateRoomRequest{Name: ""}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Room endpoints require authentication.
	status = doJSON(t, ts, http.MethodGet, "/api/rooms", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCreateDirectRoomDedup(t *testing.T) {
	ts, _ := newTestServer(t)
	aliceToken, aliceID := registerUser(t, ts, "alice")
	bobToken, bobID := registerUser(t, ts, "bob")

	var first RoomResponse
	status := doJSON(t, ts, http.MethodPost, "/api/rooms/direct", aliceToken, CreateDirectRoomRequest{PeerID: bobID}, &first)
	require.Equal(t, http.StatusOK, status)

	// The peer opening the same conversation lands in the same room.
	var second RoomResponse
	status = doJSON(t, ts, http.MethodPost, "/api/rooms/direct", bobToken, CreateDirectRoomRequest{PeerID: aliceID}, &second)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, first.ID, second.ID)

	var errResp ErrorResponse
	status = doJSON(t, ts, http.MethodPost, "/api/rooms/direct", aliceToken, CreateDirectRoomRequest{PeerID: aliceID}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)

	status = doJSON(t, ts, http.MethodPost, "/api/rooms/direct", aliceToken, CreateDirectRoomRequest{PeerID: 9999}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListMessagesEndpoint(t *testing.T) {
	ts, st := newTestServer(t)
	aliceToken, aliceID := registerUser(t, ts, "alice")
	bobToken, bobID := registerUser(t, ts, "bob")
	malloryToken, _ := registerUser(t, ts, "mallory")

	var room RoomResponse
	status := doJSON(t, ts, http.MethodPost, "/api/rooms/direct", aliceToken, CreateDirectRoomRequest{PeerID: bobID}, &room)
	require.Equal(t, http.StatusOK, status)

	ctx := context.Background()
	ids := make([]int64, 0, 5)
	for i := 1; i <= 5; i++ {
		msg := &store.Message{RoomID: room.ID, SenderID: aliceID, Content: fmt.Sprintf("m%d", i)}
		require.NoError(t, st.SaveMessage(ctx, msg))
		ids = append(ids, msg.ID)
	}

	// All five are unread for the peer, none for the sender.
	var rooms []RoomListItem
	status = doJSON(t, ts, http.MethodGet, "/api/rooms", bobToken, nil, &rooms)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, rooms, 1)
	assert.Equal(t, 5, rooms[0].UnreadCount)

	status = doJSON(t, ts, http.MethodGet, "/api/rooms", aliceToken, nil, &rooms)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, rooms, 1)
	assert.Equal(t, 0, rooms[0].UnreadCount)

	// Default page, oldest first.
	var messages []MessageResponse
	status = doJSON(t, ts, http.MethodGet, fmt.Sprintf("/api/rooms/%d/messages", room.ID), aliceToken, nil, &messages)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, messages, 5)
	assert.Equal(t, "m1", messages[0].Content)
	assert.Equal(t, "m5", messages[4].Content)

	// Limited page is the newest slice, still oldest first.
	status = doJSON(t, ts, http.MethodGet, fmt.Sprintf("/api/rooms/%d/messages?limit=2", room.ID), aliceToken, nil, &messages)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, messages, 2)
	assert.Equal(t, "m4", messages[0].Content)
	assert.Equal(t, "m5", messages[1].Content)

	// before_id pages strictly backwards.
	status = doJSON(t, ts, http.MethodGet,
		fmt.Sprintf("/api/rooms/%d/messages?limit=2&before_id=%d", room.ID, ids[3]), aliceToken, nil, &messages)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, messages, 2)
	assert.Equal(t, "m2", messages[0].Content)
	assert.Equal(t, "m3", messages[1].Content)

	// Non-participants are refused.
	status = doJSON(t, ts, http.MethodGet, fmt.Sprintf("/api/rooms/%d/messages", room.ID), malloryToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status = doJSON(t, ts, http.MethodGet, "/api/rooms/abc/messages", aliceToken, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}
