package domain

type AgentID string

// AgentKind distinguishes scripted NPC personas from user digital twins.
type AgentKind string

const (
	AgentNPC  AgentKind = "npc_preset"
	AgentTwin AgentKind = "user_twin"
)

// Agent is a conversational participant in a room roster.
// Profile is an opaque persona payload; the protocol never interprets it.
type Agent struct {
	ID      AgentID   `json:"id"`
	Name    string    `json:"name"`
	Kind    AgentKind `json:"kind"`
	Enabled bool      `json:"enabled"`
	// Possessed means the owning human supplies this agent's turns
	// instead of autonomous generation. Always false for NPCs.
	Possessed bool   `json:"possessed"`
	Owner     UserID `json:"owner,omitempty"`
	// SourceID is the preset or saved-profile the agent was materialized
	// from. Duplicate additions are rejected on this key.
	SourceID string `json:"source_id"`
	Profile  string `json:"-"`
}
