package core

import "github.com/dkeye/parley/internal/domain"

// Roster is the ordered agent set of one room. Order is join order and
// doubles as rotation order, so disable/enable keeps an agent's slot.
// Not goroutine-safe: owned by the room's Run goroutine.
type Roster struct {
	agents []*domain.Agent
}

func NewRoster() *Roster {
	return &Roster{}
}

func (ro *Roster) Len() int { return len(ro.agents) }

func (ro *Roster) Get(id domain.AgentID) (*domain.Agent, bool) {
	for _, a := range ro.agents {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// Add rejects a second agent materialized from the same preset or
// profile unless force is set.
func (ro *Roster) Add(a domain.Agent, force bool) error {
	if !force && a.SourceID != "" {
		for _, have := range ro.agents {
			if have.SourceID == a.SourceID {
				return ErrDuplicateAgent
			}
		}
	}
	if _, ok := ro.Get(a.ID); ok {
		return ErrDuplicateAgent
	}
	ro.agents = append(ro.agents, &a)
	return nil
}

func (ro *Roster) Remove(id domain.AgentID) (domain.Agent, bool) {
	for i, a := range ro.agents {
		if a.ID == id {
			ro.agents = append(ro.agents[:i], ro.agents[i+1:]...)
			return *a, true
		}
	}
	return domain.Agent{}, false
}

func (ro *Roster) SetEnabled(id domain.AgentID, enabled bool) error {
	a, ok := ro.Get(id)
	if !ok {
		return ErrUnknownAgent
	}
	a.Enabled = enabled
	return nil
}

// ClearPresets drops every NPC agent and keeps user twins. Returns how
// many were removed.
func (ro *Roster) ClearPresets() int {
	kept := ro.agents[:0]
	removed := 0
	for _, a := range ro.agents {
		if a.Kind == domain.AgentNPC {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	ro.agents = kept
	return removed
}

// TwinOf finds the user's digital twin, if one is in the roster.
func (ro *Roster) TwinOf(owner domain.UserID) (*domain.Agent, bool) {
	for _, a := range ro.agents {
		if a.Kind == domain.AgentTwin && a.Owner == owner {
			return a, true
		}
	}
	return nil, false
}

func (ro *Roster) EnabledCount() int {
	n := 0
	for _, a := range ro.agents {
		if a.Enabled {
			n++
		}
	}
	return n
}

// NextEnabled returns the next enabled agent in rotation order after the
// given one. An empty or removed reference starts from the top. Wraps
// all the way around, so a lone enabled agent follows itself.
func (ro *Roster) NextEnabled(after domain.AgentID) (*domain.Agent, bool) {
	if len(ro.agents) == 0 {
		return nil, false
	}
	start := -1
	for i, a := range ro.agents {
		if a.ID == after {
			start = i
			break
		}
	}
	for step := 1; step <= len(ro.agents); step++ {
		a := ro.agents[(start+step+len(ro.agents))%len(ro.agents)]
		if a.Enabled {
			return a, true
		}
	}
	return nil, false
}

// Snapshot returns value copies for broadcasting; callers never see the
// roster's own pointers.
func (ro *Roster) Snapshot() []domain.Agent {
	out := make([]domain.Agent, 0, len(ro.agents))
	for _, a := range ro.agents {
		out = append(out, *a)
	}
	return out
}
