package model

import "errors"

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrChannelNotFound    = errors.New("channel not found")
	ErrServerNotFound     = errors.New("server not found")
	ErrInviteNotFound     = errors.New("invite not found")
	ErrMemberNotFound     = errors.New("member not found")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrMessageTooLong     = errors.New("message is too long")
	ErrConflict           = errors.New("conflict")
	ErrInviteExpired      = errors.New("invite expired")
	ErrInviteLimitReached = errors.New("invite limit reached")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnknownEvent       = errors.New("unknown event")
)

const CodeInternal = "INTERNAL"

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrUnauthorized, "UNAUTHORIZED"},
	{ErrForbidden, "FORBIDDEN"},
	{ErrChannelNotFound, "CHANNEL_NOT_FOUND"},
	{ErrServerNotFound, "SERVER_NOT_FOUND"},
	{ErrInviteNotFound, "INVITE_NOT_FOUND"},
	{ErrMemberNotFound, "MEMBER_NOT_FOUND"},
	{ErrEmptyMessage, "EMPTY_MESSAGE"},
	{ErrMessageTooLong, "MESSAGE_TOO_LONG"},
	{ErrConflict, "CONFLICT"},
	{ErrInviteExpired, "INVITE_EXPIRED"},
	{ErrInviteLimitReached, "INVITE_LIMIT_REACHED"},
	{ErrInvalidRole, "INVALID_ROLE"},
	{ErrInvalidInput, "INVALID_INPUT"},
	{ErrUnknownEvent, "UNKNOWN_EVENT"},
}

// ErrorCode maps err to the tag reported to clients. Errors outside the
// taxonomy are reported as INTERNAL.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}
