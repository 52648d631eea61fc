package core

import (
	"context"
	"time"

	"github.com/dkeye/parley/internal/domain"
)

// Frame is a raw wire payload.
type Frame []byte

type SessionID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// EventSink receives server events for one session. Send must never
// block; a slow client is dropped from that delivery, not waited on.
type EventSink interface {
	Send(v any) error
}

// Generator is the personality-generation collaborator. Calls are
// asynchronous I/O and may fail or time out; the room retries once and
// then skips the turn.
type Generator interface {
	Utterance(ctx context.Context, agent domain.Agent, window []domain.Message) (string, error)
	Suggestions(ctx context.Context, agent domain.Agent, window []domain.Message, n int) ([]domain.Suggestion, error)
}

type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"client_count"`
}

type RoomManager interface {
	CreateRoom(name domain.RoomName) *Room
	GetRoom(id domain.RoomID) (*Room, bool)
	List() []RoomInfo
	StopRoom(id domain.RoomID)
}

// TurnConfig bounds the turn loop of a room.
type TurnConfig struct {
	// Timeout is how long a possessed turn waits for the human before an
	// autonomous utterance substitutes for it.
	Timeout time.Duration
	// GenTimeout bounds a single collaborator call.
	GenTimeout time.Duration
	// Window is how many recent messages are handed to the collaborator
	// and included in join snapshots.
	Window int
	// Suggestions is the candidate count per suggestion request.
	Suggestions int
}

func (c TurnConfig) withDefaults() TurnConfig {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.GenTimeout <= 0 {
		c.GenTimeout = 15 * time.Second
	}
	if c.Window <= 0 {
		c.Window = 50
	}
	if c.Suggestions <= 0 {
		c.Suggestions = 3
	}
	return c
}
