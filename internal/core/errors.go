package core

import "errors"

const MaxTextLen = 4096

var (
	ErrRoomClosed     = errors.New("room closed")
	ErrNotAuthority   = errors.New("only the room authority controls playback")
	ErrWrongMode      = errors.New("no human turn in progress")
	ErrNotYourTurn    = errors.New("acting agent is not controlled by this session")
	ErrEmptyText      = errors.New("empty text")
	ErrTextTooLong    = errors.New("text too long")
	ErrUnknownAgent   = errors.New("unknown agent")
	ErrDuplicateAgent = errors.New("agent already in roster")
	ErrNotPossessable = errors.New("agent is not a user twin")
	ErrNotOwner       = errors.New("agent is not owned by this session")
	ErrNotAuthor      = errors.New("only the author may edit a message")
	ErrUnknownMessage = errors.New("unknown message")
	ErrSuggestionBusy = errors.New("already generating")
	ErrNotAttached    = errors.New("session not attached to room")
)
