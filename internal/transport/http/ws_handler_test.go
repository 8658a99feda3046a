package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaychat/relaychat-server/internal/proto"
)

func wsURL(ts string) string {
	return "ws" + strings.TrimPrefix(ts, "http") + "/ws"
}

func dialWS(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendWS(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: raw}))
}

// readEvent reads outbound frames until one with the wanted event name (or
// an error frame when want is empty) arrives, and decodes its data into out.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, want string, out any) proto.Outbound {
	t.Helper()

	deadline, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	for {
		var outbound proto.Outbound
		require.NoError(t, wsjson.Read(deadline, conn, &outbound))

		if want == "" {
			if outbound.Type == proto.OutboundTypeError {
				return outbound
			}
			continue
		}
		if outbound.Event != want {
			continue
		}
		if out != nil {
			raw, err := json.Marshal(outbound.Data)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, out))
		}
		return outbound
	}
}

func TestWebSocketChatFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	aliceToken, aliceID := registerUser(t, ts, "alice")
	bobToken, bobID := registerUser(t, ts, "bob")

	var room RoomResponse
	status := doJSON(t, ts, http.MethodPost, "/api/rooms/direct", aliceToken, CreateDirectRoomRequest{PeerID: bobID}, &room)
	require.Equal(t, http.StatusOK, status)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aliceConn := dialWS(t, ctx, wsURL(ts.URL))
	bobConn := dialWS(t, ctx, wsURL(ts.URL))

	sendWS(t, ctx, aliceConn, proto.InboundTypeAuthenticate, proto.AuthenticateData{Token: aliceToken})
	var aliceAuth proto.EventAuthenticatedData
	readEvent(t, ctx, aliceConn, proto.EventAuthenticated, &aliceAuth)
	assert.Equal(t, aliceID, aliceAuth.User.ID)
	require.Len(t, aliceAuth.Rooms, 1)
	assert.Equal(t, room.ID, aliceAuth.Rooms[0].ID)

	sendWS(t, ctx, bobConn, proto.InboundTypeAuthenticate, proto.AuthenticateData{Token: bobToken})
	readEvent(t, ctx, bobConn, proto.EventAuthenticated, nil)

	// Alice sees bob come online in their shared room.
	var statusEv proto.EventUserStatusChangedData
	for {
		readEvent(t, ctx, aliceConn, proto.EventUserStatusChanged, &statusEv)
		if statusEv.UserID == bobID {
			break
		}
	}
	assert.Equal(t, "online", statusEv.Status)

	sendWS(t, ctx, aliceConn, proto.InboundTypeSendMessage, proto.SendMessageData{RoomID: room.ID, Content: "hello"})

	// Both ends receive the message, the sender included.
	var msgEv proto.EventNewMessageData
	readEvent(t, ctx, bobConn, proto.EventNewMessage, &msgEv)
	assert.Equal(t, "hello", msgEv.Message.Content)
	assert.Equal(t, aliceID, msgEv.Message.SenderID)
	readEvent(t, ctx, aliceConn, proto.EventNewMessage, &msgEv)
	assert.Equal(t, "hello", msgEv.Message.Content)

	// History comes back oldest first on an explicit join.
	sendWS(t, ctx, bobConn, proto.InboundTypeJoinRoom, proto.RoomData{RoomID: room.ID})
	var joined proto.EventRoomJoinedData
	readEvent(t, ctx, bobConn, proto.EventRoomJoined, &joined)
	require.Len(t, joined.Messages, 1)
	assert.Equal(t, "hello", joined.Messages[0].Content)
}

func TestWebSocketRejectsBeforeAuthentication(t *testing.T) {
	ts, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, wsURL(ts.URL))

	sendWS(t, ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{RoomID: 1, Content: "hi"})
	outbound := readEvent(t, ctx, conn, "", nil)
	require.NotNil(t, outbound.Error)
	assert.Equal(t, "not_authenticated", outbound.Error.Code)
}

func TestWebSocketMalformedPayloadError(t *testing.T) {
	ts, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, wsURL(ts.URL))

	// A known type with missing required fields yields a protocol error,
	// not a dropped connection.
	sendWS(t, ctx, conn, proto.InboundTypeAuthenticate, proto.AuthenticateData{})
	outbound := readEvent(t, ctx, conn, "", nil)
	require.NotNil(t, outbound.Error)

	// Data that fails to decode is scoped to that message too.
	sendWS(t, ctx, conn, proto.InboundTypeJoinRoom, map[string]any{"room_id": "abc"})
	outbound = readEvent(t, ctx, conn, "", nil)
	require.NotNil(t, outbound.Error)

	sendWS(t, ctx, conn, "bogus_type", struct{}{})
	outbound = readEvent(t, ctx, conn, "", nil)
	require.NotNil(t, outbound.Error)
}

func TestWebSocketAuthTimeout(t *testing.T) {
	ts, _ := newTestServerAuthTimeout(t, 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, wsURL(ts.URL))

	// Never authenticate; the server drops the connection once the window
	// elapses and reads start failing.
	var outbound proto.Outbound
	err := wsjson.Read(ctx, conn, &outbound)
	require.Error(t, err)
}
