package server

import (
	"time"

	"babelchat/internal/types"
)

type BaseMessage struct {
	Id        int   `json:"id,omitempty"`
	Timestamp int64 `json:"timestamp,omitempty"`
}

type ClientMessage struct {
	BaseMessage
	ChooseUsername *ChooseUsername `json:"choose_username,omitempty"`
	CreateRoom     *CreateRoom     `json:"create_room,omitempty"`
	Join           *Join           `json:"join_room,omitempty"`
	Publish        *Publish        `json:"send_message,omitempty"`
}

type ChooseUsername struct {
	Name string `json:"name"`
	Lang string `json:"lang,omitempty"`
}

type CreateRoom struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
	Password  string `json:"password,omitempty"`
}

type Join struct {
	RoomId   string `json:"room_id"`
	Password string `json:"password,omitempty"`
}

type Publish struct {
	RoomId string `json:"room_id,omitempty"`
	Text   string `json:"text"`
}

type ServerMessage struct {
	BaseMessage
	Response    *Response                 `json:"response,omitempty"`
	ChatMessage *types.Message            `json:"chat_message,omitempty"`
	RoomList    map[string]types.RoomInfo `json:"room_list,omitempty"`
	History     []types.Message           `json:"chat_history,omitempty"`
	UserList    []string                  `json:"user_list,omitempty"`
}

type Response struct {
	Ok     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	RoomId string `json:"room_id,omitempty"`
}

func AckOK(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: NowMillis(),
		},
		Response: &Response{
			Ok: true,
		},
	}
}

func AckRoom(id int, roomID string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: NowMillis(),
		},
		Response: &Response{
			Ok:     true,
			RoomId: roomID,
		},
	}
}

func AckError(id int, errMsg string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: NowMillis(),
		},
		Response: &Response{
			Ok:    false,
			Error: errMsg,
		},
	}
}

func systemMessage(text, roomID string) types.Message {
	return types.Message{
		Author:    types.SystemAuthor,
		Text:      text,
		Timestamp: NowMillis(),
		RoomId:    roomID,
	}
}

func NowMillis() int64 {
	return time.Now().UnixMilli()
}
