package types

import (
	"time"
)

// SystemAuthor is the author recorded on synthetic join/leave notices.
const SystemAuthor = "SYSTEM"

type User struct {
	Username string `json:"username"`
	Language string `json:"language,omitempty"`
}

// Message is immutable once created. Timestamp is epoch milliseconds.
type Message struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	RoomId    string `json:"room_id"`
}

// RoomInfo is the public view of a room. Password material is never
// exposed here.
type RoomInfo struct {
	Name      string    `json:"name"`
	IsPrivate bool      `json:"is_private"`
	CreatedAt time.Time `json:"created_at"`
}
