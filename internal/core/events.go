package core

import "github.com/dkeye/parley/internal/domain"

// Server-to-client events. Every event carries a type discriminator;
// adapters marshal these verbatim onto the wire.

type SnapshotEvent struct {
	Type      string           `json:"type"`
	Room      domain.RoomID    `json:"room"`
	RoomName  domain.RoomName  `json:"room_name"`
	Roster    []domain.Agent   `json:"roster"`
	Log       []domain.Message `json:"log"`
	Turn      domain.TurnState `json:"turn"`
	Playback  domain.Playback  `json:"playback"`
	Authority domain.UserID    `json:"authority,omitempty"`
	Count     int              `json:"count"`
}

type MessageEvent struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

type MessageEditedEvent struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
	Text string `json:"text"`
}

type TurnEvent struct {
	Type string           `json:"type"`
	Turn domain.TurnState `json:"turn"`
}

type RosterEvent struct {
	Type      string         `json:"type"`
	Roster    []domain.Agent `json:"roster"`
	Authority domain.UserID  `json:"authority,omitempty"`
}

type PlaybackEvent struct {
	Type     string          `json:"type"`
	Playback domain.Playback `json:"playback"`
}

type SuggestionsEvent struct {
	Type  string              `json:"type"`
	Items []domain.Suggestion `json:"items"`
}

type MemberEvent struct {
	Type string      `json:"type"`
	User domain.User `json:"user"`
}

type ErrorEvent struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}
