package session

import "github.com/pkg/errors"

// Transport and correlation failures. These are recovered into disconnection
// events or surfaced to the SendAndWait caller, never thrown past dispatch.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrRequestTimedOut  = errors.New("request timed out")
)

// Registration and session lifecycle.
var (
	ErrNicknameInUse        = errors.New("nickname already in use")
	ErrUnrecoverableSession = errors.New("no connected participants remain")
)

// Turn discipline. Always converted to a typed rejection response at the
// dispatch boundary.
var (
	ErrNotActivePlayer        = errors.New("not the active player")
	ErrPrimaryMoveAlreadyMade = errors.New("primary move already made this turn")
	ErrPrimaryMoveNotMade     = errors.New("primary move not made yet")
)
