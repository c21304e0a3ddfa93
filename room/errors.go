package room

import "errors"

var (
	ErrInvalidRoom     = errors.New("invalid room settings")
	ErrDuplicateRoomID = errors.New("room id already exists")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrInvalidPassword = errors.New("invalid password")
	ErrAlreadyInRoom   = errors.New("connection is already in a room")
	ErrNotInRoom       = errors.New("connection is not in this room")
)
