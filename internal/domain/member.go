package domain

// Member represents a session's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	User *User
	// Agent is the twin this member acts through, if any.
	Agent AgentID
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user *User) *Member {
	return &Member{User: user}
}
