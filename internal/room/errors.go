package room

import (
	"errors"
	"fmt"
)

// 房间错误定义

var (
	ErrRoomNotFound  = errors.New("ROOM_NOT_FOUND")
	ErrRoomFull      = errors.New("ROOM_FULL")
	ErrRoomFinished  = errors.New("ROOM_FINISHED")
	ErrAlreadyInRoom = errors.New("ALREADY_IN_ROOM")
	ErrNotInRoom     = errors.New("NOT_IN_ROOM")
	ErrInvalidIntent = errors.New("INVALID_INTENT")
)

// RoomError 携带房间上下文的错误
type RoomError struct {
	RoomID string
	Op     string
	Err    error
}

// Error 实现 error 接口
func (e *RoomError) Error() string {
	if e.RoomID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s room %s: %v", e.Op, e.RoomID, e.Err)
}

// Unwrap 支持 errors.Is / errors.As
func (e *RoomError) Unwrap() error {
	return e.Err
}

func wrap(op, roomID string, err error) error {
	if err == nil {
		return nil
	}
	return &RoomError{RoomID: roomID, Op: op, Err: err}
}
