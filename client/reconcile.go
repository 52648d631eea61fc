// Package client is the Go client for a parley server: the WebSocket
// session plus the optimistic-echo reconciler that keeps a locally
// rendered transcript consistent with the authoritative broadcast
// stream.
package client

import (
	"strings"

	"github.com/dkeye/parley/internal/domain"
)

// echoLookback is how many non-matching broadcasts may arrive before an
// outstanding optimistic echo stops being a reconciliation candidate.
// Past that point matching would risk binding to the wrong far-past
// entry; a duplicate-looking line is the lesser evil.
const echoLookback = 3

// Line is one rendered transcript entry. Pending lines are local echoes
// not yet confirmed by the server.
type Line struct {
	Seq     uint64
	Ref     string
	Agent   domain.AgentID
	Name    string
	Text    string
	Human   bool
	Auto    bool
	Edited  bool
	Pending bool
}

type pendingEcho struct {
	ref    string
	text   string
	line   int
	misses int
}

// Reconciler merges the local echo queue with authoritative messages.
// Not goroutine-safe; callers serialize access (Client does).
type Reconciler struct {
	self    domain.AgentID
	lines   []Line
	pending []*pendingEcho
	seen    map[uint64]int
}

func NewReconciler() *Reconciler {
	return &Reconciler{seen: make(map[uint64]int)}
}

// SetSelf names the agent whose human-authored broadcasts count as "own"
// for text-heuristic matching.
func (r *Reconciler) SetSelf(agent domain.AgentID) { r.self = agent }

// Reset replaces the transcript with a server snapshot, discarding all
// optimistic state.
func (r *Reconciler) Reset(log []domain.Message) {
	r.lines = r.lines[:0]
	r.pending = r.pending[:0]
	r.seen = make(map[uint64]int, len(log))
	for _, m := range log {
		r.appendAuthoritative(m)
	}
}

// LocalSubmit renders the user's outgoing text immediately and queues it
// for reconciliation against the later authoritative echo.
func (r *Reconciler) LocalSubmit(ref, text string) {
	r.lines = append(r.lines, Line{
		Ref:     ref,
		Agent:   r.self,
		Text:    text,
		Human:   true,
		Pending: true,
	})
	r.pending = append(r.pending, &pendingEcho{ref: ref, text: text, line: len(r.lines) - 1})
}

// Apply folds one authoritative broadcast into the transcript. Replaying
// the same broadcast twice never produces two visible lines.
func (r *Reconciler) Apply(m domain.Message) {
	if idx, ok := r.seen[m.Seq]; ok {
		r.lines[idx] = authoritativeLine(m)
		return
	}
	if p := r.match(m); p != nil {
		r.lines[p.line] = authoritativeLine(m)
		r.seen[m.Seq] = p.line
		r.dropPending(p)
		return
	}
	r.appendAuthoritative(m)
	r.age()
}

// ApplyEdit updates display text in place; position and seq are stable.
func (r *Reconciler) ApplyEdit(seq uint64, text string) {
	if idx, ok := r.seen[seq]; ok {
		r.lines[idx].Text = text
		r.lines[idx].Edited = true
	}
}

// Lines returns the rendered transcript, pending echoes included.
func (r *Reconciler) Lines() []Line {
	out := make([]Line, len(r.lines))
	copy(out, r.lines)
	return out
}

// match finds the echo this broadcast confirms: correlation token first,
// then the oldest echo whose text the broadcast contains (tolerates
// light server-side normalization).
func (r *Reconciler) match(m domain.Message) *pendingEcho {
	if !m.Human || r.self == "" || m.Agent != r.self {
		return nil
	}
	if m.ClientRef != "" {
		for _, p := range r.pending {
			if p.ref == m.ClientRef {
				return p
			}
		}
	}
	for _, p := range r.pending {
		if p.text == m.Text || strings.Contains(m.Text, p.text) {
			return p
		}
	}
	return nil
}

func (r *Reconciler) appendAuthoritative(m domain.Message) {
	r.lines = append(r.lines, authoritativeLine(m))
	r.seen[m.Seq] = len(r.lines) - 1
}

// age bumps the miss count after an unmatched broadcast and abandons
// echoes past the look-back window. Their lines stay rendered.
func (r *Reconciler) age() {
	kept := r.pending[:0]
	for _, p := range r.pending {
		p.misses++
		if p.misses < echoLookback {
			kept = append(kept, p)
		}
	}
	r.pending = kept
}

func (r *Reconciler) dropPending(target *pendingEcho) {
	kept := r.pending[:0]
	for _, p := range r.pending {
		if p != target {
			kept = append(kept, p)
		}
	}
	r.pending = kept
}

func authoritativeLine(m domain.Message) Line {
	return Line{
		Seq:    m.Seq,
		Ref:    m.ClientRef,
		Agent:  m.Agent,
		Name:   m.AgentName,
		Text:   m.Text,
		Human:  m.Human,
		Auto:   m.Auto,
		Edited: m.Edited,
	}
}
