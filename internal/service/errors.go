package service

import (
	"errors"
	"fmt"
)

// 业务错误。Handler 层通过 errors.Is 将它们映射为 HTTP 状态码 /
// WebSocket error 事件。
var (
	ErrValidation           = errors.New("invalid input")
	ErrUserNotFound         = errors.New("user not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrParticipantNotFound  = errors.New("participant not found in room")
	ErrRoomState            = errors.New("operation not allowed in current room status")
	ErrRoomFull             = errors.New("room is full")
	ErrAlreadyInRoom        = errors.New("user already in room")
	ErrNotCreator           = errors.New("only the room creator may perform this operation")
	ErrNotInQueue           = errors.New("user not in matching queue")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username or email already exists")
	ErrCodeExhausted        = errors.New("failed to allocate a unique room code")
	ErrInternalServer       = errors.New("internal server error")
)

// validationError 返回一个带具体原因、可用 errors.Is(err, ErrValidation)
// 识别的校验错误。
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
