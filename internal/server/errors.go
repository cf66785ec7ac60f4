package server

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrWrongPassword    = errors.New("wrong password")
	ErrEmptyRoomName    = errors.New("room name required")
	ErrPasswordRequired = errors.New("password required for private room")
)
