package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/relaychat/relaychat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "JWT obtained from /api/login")
	room := flag.Int64("room", 0, "room id to join")
	flag.Parse()

	if *token == "" {
		return errors.New("-token is required")
	}
	if *room == 0 {
		return errors.New("-room is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(msgType string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", msgType, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
			cancel()
			return fmt.Errorf("send %s: %w", msgType, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeAuthenticate, proto.AuthenticateData{Token: *token}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeJoinRoom, proto.RoomData{RoomID: *room}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s, room %d\n", *addr, *room)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if outbound.Type == proto.OutboundTypeError && outbound.Error != nil {
			fmt.Printf("error: %s (%s)\n", outbound.Error.Msg, outbound.Error.Code)
			continue
		}

		switch outbound.Event {
		case proto.EventNewMessage:
			var evt proto.EventNewMessageData
			if err := reunmarshal(outbound.Data, &evt); err != nil {
				log.Printf("unmarshal new_message: %v", err)
				continue
			}
			fmt.Printf("[room %d] user %d: %s\n", evt.Message.RoomID, evt.Message.SenderID, evt.Message.Content)
		case proto.EventUserJoinedRoom:
			var evt proto.EventRoomUserData
			if err := reunmarshal(outbound.Data, &evt); err != nil {
				log.Printf("unmarshal user_joined_room: %v", err)
				continue
			}
			fmt.Printf("[room %d] %s joined\n", evt.RoomID, evt.User.Username)
		case proto.EventUserLeftRoom:
			var evt proto.EventRoomUserData
			if err := reunmarshal(outbound.Data, &evt); err != nil {
				log.Printf("unmarshal user_left_room: %v", err)
				continue
			}
			fmt.Printf("[room %d] %s left\n", evt.RoomID, evt.User.Username)
		case proto.EventUserStatusChanged:
			var evt proto.EventUserStatusChangedData
			if err := reunmarshal(outbound.Data, &evt); err != nil {
				log.Printf("unmarshal user_status_changed: %v", err)
				continue
			}
			fmt.Printf("user %d is now %s\n", evt.UserID, evt.Status)
		default:
			fmt.Printf("event=%s data=%v\n", outbound.Event, outbound.Data)
		}
	}
}

// reunmarshal decodes the loosely-typed Data field into a concrete payload.
func reunmarshal(data any, dst any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room int64) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			payload, err := json.Marshal(proto.SendMessageData{RoomID: room, Content: text})
			if err != nil {
				log.Printf("marshal send_message: %v", err)
				return
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSendMessage, Data: payload}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
