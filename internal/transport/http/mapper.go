package http

import (
	"encoding/json"

	"github.com/relaychat/relaychat-server/internal/core"
	"github.com/relaychat/relaychat-server/internal/proto"
	"github.com/relaychat/relaychat-server/internal/store"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeAuthenticate:
		var data proto.AuthenticateData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Token == "" {
			return nil, &proto.Error{Code: core.ErrCodeAuthFailed, Msg: "token is required"}, nil
		}
		return &core.Command{Kind: core.CommandAuthenticate, Token: data.Token}, nil, nil

	case proto.InboundTypeJoinRoom, proto.InboundTypeLeaveRoom, proto.InboundTypeRoomOnlineUsers:
		var data proto.RoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.RoomID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "room_id is required"}, nil
		}
		kind := core.CommandJoinRoom
		switch inbound.Type {
		case proto.InboundTypeLeaveRoom:
			kind = core.CommandLeaveRoom
		case proto.InboundTypeRoomOnlineUsers:
			kind = core.CommandRoomOnlineUsers
		}
		return &core.Command{Kind: kind, RoomID: data.RoomID}, nil, nil

	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.RoomID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "room_id is required"}, nil
		}
		return &core.Command{
			Kind:    core.CommandSendMessage,
			RoomID:  data.RoomID,
			Content: data.Content,
			ReplyTo: data.ReplyTo,
		}, nil, nil

	case proto.InboundTypeTyping:
		var data proto.TypingData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.RoomID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "room_id is required"}, nil
		}
		return &core.Command{Kind: core.CommandTyping, RoomID: data.RoomID, IsTyping: data.IsTyping}, nil, nil

	case proto.InboundTypeMarkMessagesRead:
		var data proto.MarkMessagesReadData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.RoomID == 0 || len(data.MessageIDs) == 0 {
			return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "room_id and message_ids are required"}, nil
		}
		return &core.Command{Kind: core.CommandMarkRead, RoomID: data.RoomID, MessageIDs: data.MessageIDs}, nil, nil

	case proto.InboundTypeCreateGroup:
		var data proto.CreateGroupData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		return &core.Command{
			Kind:           core.CommandCreateGroup,
			Name:           data.Name,
			Description:    data.Description,
			ParticipantIDs: data.ParticipantIDs,
		}, nil, nil

	case proto.InboundTypeCreatePrivateRoom:
		var data proto.CreatePrivateRoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.PeerID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "peer_id is required"}, nil
		}
		return &core.Command{Kind: core.CommandCreatePrivateRoom, PeerID: data.PeerID}, nil, nil

	case proto.InboundTypeUpdateStatus:
		var data proto.UpdateStatusData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		return &core.Command{Kind: core.CommandUpdateStatus, Status: store.Status(data.Status)}, nil, nil

	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "unknown message type"}, nil
	}
}

func userDTO(u *store.User) proto.User {
	if u == nil {
		return proto.User{}
	}
	return proto.User{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Status:      string(u.Status),
		LastSeen:    u.LastSeen.Unix(),
	}
}

func roomDTO(r *store.Room) proto.Room {
	if r == nil {
		return proto.Room{}
	}
	return proto.Room{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		Type:         string(r.Type),
		CreatorID:    r.CreatorID,
		LastActivity: r.LastActivity.Unix(),
		CreatedAt:    r.CreatedAt.Unix(),
	}
}

func messageDTO(m *store.Message) proto.Message {
	if m == nil {
		return proto.Message{}
	}
	return proto.Message{
		ID:       m.ID,
		RoomID:   m.RoomID,
		SenderID: m.SenderID,
		Content:  m.Content,
		Type:     string(m.Type),
		ReplyTo:  m.ReplyToID,
		Edited:   m.Edited,
		TS:       m.CreatedAt.Unix(),
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	ts := event.At.Unix()

	switch event.Kind {
	case core.EventAuthenticated:
		rooms := make([]proto.Room, 0, len(event.Rooms))
		for _, r := range event.Rooms {
			rooms = append(rooms, roomDTO(r))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventAuthenticated,
			Data:  proto.EventAuthenticatedData{User: userDTO(event.User), Rooms: rooms},
		}

	case core.EventAuthError:
		msg := "authentication failed"
		if event.Err != nil {
			msg = event.Err.Message
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventAuthError,
			Data:  proto.EventAuthErrorData{Message: msg},
		}

	case core.EventRoomJoined:
		messages := make([]proto.Message, 0, len(event.Messages))
		for _, m := range event.Messages {
			messages = append(messages, messageDTO(m))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventRoomJoined,
			Data:  proto.EventRoomJoinedData{RoomID: event.RoomID, Messages: messages},
		}

	case core.EventRoomLeft:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventRoomLeft,
			Data:  proto.EventRoomLeftData{RoomID: event.RoomID},
		}

	case core.EventUserJoinedRoom, core.EventUserLeftRoom:
		name := proto.EventUserJoinedRoom
		if event.Kind == core.EventUserLeftRoom {
			name = proto.EventUserLeftRoom
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data:  proto.EventRoomUserData{RoomID: event.RoomID, User: userDTO(event.User), TS: ts},
		}

	case core.EventNewMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data:  proto.EventNewMessageData{Message: messageDTO(event.Message)},
		}

	case core.EventUserTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserTyping,
			Data: proto.EventUserTypingData{
				RoomID:   event.RoomID,
				User:     userDTO(event.User),
				IsTyping: event.IsTyping,
				TS:       ts,
			},
		}

	case core.EventUserStatusChanged:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserStatusChanged,
			Data: proto.EventUserStatusChangedData{
				UserID: event.UserID,
				Status: string(event.Status),
				TS:     ts,
			},
		}

	case core.EventMessagesRead:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessagesRead,
			Data: proto.EventMessagesReadData{
				RoomID:     event.RoomID,
				MessageIDs: event.MessageIDs,
				ReadBy:     event.ReadBy,
				TS:         ts,
			},
		}

	case core.EventGroupCreated, core.EventRoomCreated:
		name := proto.EventGroupCreated
		if event.Kind == core.EventRoomCreated {
			name = proto.EventRoomCreated
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data:  proto.EventRoomCreatedData{Room: roomDTO(event.Room)},
		}

	case core.EventRoomOnlineUsers:
		users := make([]proto.User, 0, len(event.Users))
		for _, u := range event.Users {
			users = append(users, userDTO(u))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventRoomOnlineUsers,
			Data:  proto.EventRoomOnlineUsersData{RoomID: event.RoomID, OnlineUsers: users},
		}

	case core.EventError:
		if event.Err == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Err.Code, Msg: event.Err.Message},
		}

	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
