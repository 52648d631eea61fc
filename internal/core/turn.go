package core

import (
	"context"
	"strings"
	"time"

	"github.com/dkeye/parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// turnState tracks who holds the floor. epoch increments on every turn
// transition; timer fires and generation results carrying a stale epoch
// are discarded, which is what makes cancellation race-free.
type turnState struct {
	mode        domain.TurnMode
	acting      domain.AgentID
	deadline    time.Time
	epoch       uint64
	substituted bool
	retried     bool
	suggesting  bool
}

func (r *Room) turnView() domain.TurnState {
	ts := domain.TurnState{
		Mode:       r.turn.mode,
		Agent:      r.turn.acting,
		Suggesting: r.turn.suggesting,
	}
	if r.turn.mode == domain.TurnAwaitingHuman && !r.turn.deadline.IsZero() {
		d := r.turn.deadline
		ts.Deadline = &d
	}
	if r.turn.mode == domain.TurnIdle {
		ts.Agent = ""
	}
	return ts
}

func (r *Room) broadcastTurn() {
	r.broadcast(TurnEvent{Type: "turn_state_changed", Turn: r.turnView()})
}

// kickstart begins rotation when a running room is sitting idle, e.g.
// after the first agent gets added or re-enabled.
func (r *Room) kickstart() {
	if r.playback == domain.PlaybackRunning && r.turn.mode == domain.TurnIdle {
		r.advance()
	}
}

// advance hands the floor to the next enabled agent in rotation order.
// Possessed twins wait for their human with a deadline; everything else
// generates autonomously.
func (r *Room) advance() {
	r.stopTimer()
	r.turn.epoch++
	r.turn.substituted = false
	r.turn.retried = false
	r.turn.suggesting = false
	r.turn.deadline = time.Time{}

	if r.playback != domain.PlaybackRunning {
		r.turn.mode = domain.TurnIdle
		r.broadcastTurn()
		return
	}
	next, ok := r.roster.NextEnabled(r.turn.acting)
	if !ok {
		r.turn.mode = domain.TurnIdle
		r.turn.acting = ""
		r.broadcastTurn()
		return
	}
	r.turn.acting = next.ID
	if next.Kind == domain.AgentTwin && next.Possessed {
		r.turn.mode = domain.TurnAwaitingHuman
		r.turn.deadline = time.Now().Add(r.cfg.Timeout)
		r.startTimer(r.turn.epoch)
	} else {
		r.turn.mode = domain.TurnAutonomous
		r.generate(r.turn.epoch, *next, false)
	}
	log.Debug().Str("module", "core.turn").Str("room", string(r.info.ID)).Str("agent", string(next.ID)).Str("mode", string(r.turn.mode)).Msg("floor advanced")
	r.broadcastTurn()
}

func (r *Room) startTimer(epoch uint64) {
	r.timer = time.AfterFunc(r.cfg.Timeout, func() {
		r.do(func() { r.onDeadline(epoch) })
	})
}

func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// onDeadline fires inside the room loop when a possessed turn expires.
// A submission that won the race has already advanced the epoch, so the
// stale fire is a no-op.
func (r *Room) onDeadline(epoch uint64) {
	if epoch != r.turn.epoch || r.turn.mode != domain.TurnAwaitingHuman {
		return
	}
	agent, ok := r.roster.Get(r.turn.acting)
	if !ok {
		r.advance()
		return
	}
	log.Info().Str("module", "core.turn").Str("room", string(r.info.ID)).Str("agent", string(agent.ID)).Msg("possessed turn expired, substituting")
	r.turn.mode = domain.TurnAutonomous
	r.turn.deadline = time.Time{}
	r.turn.suggesting = false
	r.turn.substituted = true
	r.broadcastTurn()
	r.generate(epoch, *agent, true)
}

// generate runs the collaborator call off the room loop and posts the
// result back in. substituted marks a deadline fallback utterance.
func (r *Room) generate(epoch uint64, agent domain.Agent, substituted bool) {
	window := r.log.Window(r.cfg.Window)
	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.GenTimeout)
		defer cancel()
		text, err := r.gen.Utterance(ctx, agent, window)
		r.do(func() { r.onGenerated(epoch, agent, text, err, substituted) })
	}()
}

func (r *Room) onGenerated(epoch uint64, agent domain.Agent, text string, err error, substituted bool) {
	if epoch != r.turn.epoch || r.turn.mode != domain.TurnAutonomous {
		log.Debug().Str("module", "core.turn").Str("room", string(r.info.ID)).Str("agent", string(agent.ID)).Msg("stale generation result discarded")
		return
	}
	if err != nil {
		if !r.turn.retried {
			log.Warn().Err(err).Str("module", "core.turn").Str("room", string(r.info.ID)).Str("agent", string(agent.ID)).Msg("generation failed, retrying")
			r.turn.retried = true
			r.generate(epoch, agent, substituted)
			return
		}
		log.Error().Err(err).Str("module", "core.turn").Str("room", string(r.info.ID)).Str("agent", string(agent.ID)).Msg("generation failed twice, skipping turn")
		r.broadcast(ErrorEvent{Type: "error", Code: "generation_failed", Detail: agent.Name + ": turn skipped"})
		r.advance()
		return
	}
	msg := r.log.Append(domain.Message{
		Agent:     agent.ID,
		AgentName: agent.Name,
		Text:      text,
		Auto:      substituted,
	})
	r.broadcast(MessageEvent{Type: "message_appended", Message: msg})
	r.advance()
}

// Submit appends a human utterance for the acting possessed agent.
// Valid only while that turn is still awaiting input; after the deadline
// fires the mode has moved on and the submission is rejected.
func (r *Room) Submit(sid SessionID, text, clientRef string) error {
	return r.call(func() error {
		m, ok := r.sessions[sid]
		if !ok {
			return ErrNotAttached
		}
		if r.turn.mode != domain.TurnAwaitingHuman {
			return ErrWrongMode
		}
		if m.meta.Agent == "" || m.meta.Agent != r.turn.acting {
			return ErrNotYourTurn
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return ErrEmptyText
		}
		if len(text) > MaxTextLen {
			return ErrTextTooLong
		}
		agent, ok := r.roster.Get(r.turn.acting)
		if !ok {
			return ErrUnknownAgent
		}
		msg := r.log.Append(domain.Message{
			Agent:     agent.ID,
			AgentName: agent.Name,
			Author:    m.meta.User.ID,
			Text:      text,
			Human:     true,
			ClientRef: clientRef,
		})
		r.stopTimer()
		r.broadcast(MessageEvent{Type: "message_appended", Message: msg})
		r.advance()
		return nil
	})
}

// TogglePossession flips whether the twin's turns wait for its human.
// Disabling mid-wait falls through to autonomous generation for the
// current turn without the auto-substituted marker; re-enabling while
// the twin's autonomous turn is still generating reclaims the turn and
// discards the in-flight result.
func (r *Room) TogglePossession(sid SessionID, id domain.AgentID, enabled bool) error {
	return r.call(func() error {
		m, ok := r.sessions[sid]
		if !ok {
			return ErrNotAttached
		}
		agent, ok := r.roster.Get(id)
		if !ok {
			return ErrUnknownAgent
		}
		if agent.Kind != domain.AgentTwin {
			return ErrNotPossessable
		}
		if agent.Owner != m.meta.User.ID {
			return ErrNotOwner
		}
		if agent.Possessed == enabled {
			return nil
		}
		agent.Possessed = enabled
		r.broadcastRoster()
		switch {
		case !enabled && r.turn.mode == domain.TurnAwaitingHuman && r.turn.acting == id:
			r.stopTimer()
			r.turn.mode = domain.TurnAutonomous
			r.turn.deadline = time.Time{}
			r.turn.suggesting = false
			r.broadcastTurn()
			r.generate(r.turn.epoch, *agent, false)
		case enabled && r.turn.mode == domain.TurnAutonomous && r.turn.acting == id:
			r.turn.epoch++
			r.turn.mode = domain.TurnAwaitingHuman
			r.turn.deadline = time.Now().Add(r.cfg.Timeout)
			r.turn.substituted = false
			r.turn.retried = false
			r.startTimer(r.turn.epoch)
			r.broadcastTurn()
		}
		return nil
	})
}

// EditMessage swaps display text on an existing message. Author only;
// sequence number and position never change.
func (r *Room) EditMessage(sid SessionID, seq uint64, text string) error {
	return r.call(func() error {
		m, ok := r.sessions[sid]
		if !ok {
			return ErrNotAttached
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return ErrEmptyText
		}
		if len(text) > MaxTextLen {
			return ErrTextTooLong
		}
		msg, ok := r.log.Get(seq)
		if !ok {
			return ErrUnknownMessage
		}
		if msg.Author == "" || msg.Author != m.meta.User.ID {
			return ErrNotAuthor
		}
		edited, err := r.log.Edit(seq, text)
		if err != nil {
			return err
		}
		r.broadcast(MessageEditedEvent{Type: "message_edited", Seq: edited.Seq, Text: edited.Text})
		return nil
	})
}

// RequestSuggestions asks the collaborator for candidate replies during
// the requester's own possessed turn. Single-flight per turn.
func (r *Room) RequestSuggestions(sid SessionID) error {
	return r.call(func() error {
		m, ok := r.sessions[sid]
		if !ok {
			return ErrNotAttached
		}
		if r.turn.mode != domain.TurnAwaitingHuman {
			return ErrWrongMode
		}
		if m.meta.Agent == "" || m.meta.Agent != r.turn.acting {
			return ErrNotYourTurn
		}
		if r.turn.suggesting {
			return ErrSuggestionBusy
		}
		agent, ok := r.roster.Get(r.turn.acting)
		if !ok {
			return ErrUnknownAgent
		}
		r.turn.suggesting = true
		r.broadcastTurn()
		epoch := r.turn.epoch
		snapshot := *agent
		window := r.log.Window(r.cfg.Window)
		n := r.cfg.Suggestions
		go func() {
			ctx, cancel := context.WithTimeout(r.ctx, r.cfg.GenTimeout)
			defer cancel()
			items, err := r.gen.Suggestions(ctx, snapshot, window, n)
			r.do(func() { r.onSuggestions(sid, epoch, items, err) })
		}()
		return nil
	})
}

func (r *Room) onSuggestions(sid SessionID, epoch uint64, items []domain.Suggestion, err error) {
	if epoch != r.turn.epoch || r.turn.mode != domain.TurnAwaitingHuman {
		return
	}
	r.turn.suggesting = false
	r.broadcastTurn()
	m, ok := r.sessions[sid]
	if !ok {
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "core.turn").Str("room", string(r.info.ID)).Msg("suggestion generation failed")
		r.sendTo(m.sink, ErrorEvent{Type: "error", Code: "suggestions_failed", Detail: err.Error()})
		return
	}
	r.sendTo(m.sink, SuggestionsEvent{Type: "suggestions", Items: items})
}
