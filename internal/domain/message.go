package domain

import "time"

// Message is one utterance in a room log. Immutable once appended except
// for display-text edits, which keep the sequence number and record the
// previous text in History.
type Message struct {
	Seq       uint64    `json:"seq"`
	Agent     AgentID   `json:"agent"`
	AgentName string    `json:"agent_name"`
	Author    UserID    `json:"author,omitempty"`
	Text      string    `json:"text"`
	Human     bool      `json:"human,omitempty"`
	Auto      bool      `json:"auto,omitempty"`
	Edited    bool      `json:"edited,omitempty"`
	History   []string  `json:"-"`
	Timestamp time.Time `json:"ts"`
	// ClientRef is the submitter's correlation token, echoed back so the
	// submitting client can reconcile its optimistic local copy.
	ClientRef string `json:"client_ref,omitempty"`
}
