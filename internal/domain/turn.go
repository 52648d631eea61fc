package domain

import "time"

type TurnMode string

const (
	TurnIdle          TurnMode = "idle"
	TurnAutonomous    TurnMode = "autonomous_pending"
	TurnAwaitingHuman TurnMode = "awaiting_human_input"
)

// TurnState is the server-authoritative floor state of a room.
// Clients only observe and mirror it.
type TurnState struct {
	Mode  TurnMode `json:"mode"`
	Agent AgentID  `json:"agent,omitempty"`
	// Deadline is set only in awaiting_human_input.
	Deadline *time.Time `json:"deadline,omitempty"`
	// Suggesting reports the suggestion_pending sub-state of
	// awaiting_human_input.
	Suggesting bool `json:"suggesting,omitempty"`
}

type Playback string

const (
	PlaybackRunning Playback = "running"
	PlaybackPaused  Playback = "paused"
	PlaybackStopped Playback = "stopped"
)
