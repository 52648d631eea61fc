package core

import (
	"context"
	"time"

	"github.com/dkeye/parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// member pairs a session's meta with its transport endpoint.
type member struct {
	meta *domain.Member
	sink EventSink
}

// Room owns all mutable state of one session room. Every mutation —
// roster, log, turn state, timer fire, generation result — runs on the
// single Run goroutine, so races between a timeout and a late human
// submission resolve to exactly one winner.
type Room struct {
	info    *domain.Room
	cfg     TurnConfig
	gen     Generator
	ctx     context.Context
	cancel  context.CancelFunc
	cmds    chan func()
	onEmpty func(domain.RoomID)

	// State below is touched only from Run.
	log       *MessageLog
	roster    *Roster
	sessions  map[SessionID]*member
	order     []SessionID
	authority SessionID
	playback  domain.Playback
	turn      turnState
	timer     *time.Timer
}

// NewRoom builds a room; the caller must start Run in its own goroutine.
// onEmpty fires (from the room goroutine) when the last session detaches.
func NewRoom(parent context.Context, info *domain.Room, gen Generator, cfg TurnConfig, onEmpty func(domain.RoomID)) *Room {
	ctx, cancel := context.WithCancel(parent)
	return &Room{
		info:     info,
		cfg:      cfg.withDefaults(),
		gen:      gen,
		ctx:      ctx,
		cancel:   cancel,
		cmds:     make(chan func(), 64),
		onEmpty:  onEmpty,
		log:      NewMessageLog(),
		roster:   NewRoster(),
		sessions: make(map[SessionID]*member),
		playback: domain.PlaybackStopped,
		turn:     turnState{mode: domain.TurnIdle},
	}
}

func (r *Room) Room() *domain.Room { return r.info }

// Run is the room's serialized execution context.
func (r *Room) Run() {
	for {
		select {
		case <-r.ctx.Done():
			r.stopTimer()
			log.Info().Str("module", "core.room").Str("room", string(r.info.ID)).Msg("room loop stopped")
			return
		case fn := <-r.cmds:
			fn()
		}
	}
}

func (r *Room) Stop() { r.cancel() }

// do posts fn into the room loop without waiting for it.
func (r *Room) do(fn func()) bool {
	select {
	case r.cmds <- fn:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// call posts fn and waits for its result.
func (r *Room) call(fn func() error) error {
	done := make(chan error, 1)
	if !r.do(func() { done <- fn() }) {
		return ErrRoomClosed
	}
	select {
	case err := <-done:
		return err
	case <-r.ctx.Done():
		return ErrRoomClosed
	}
}

// Attach registers a session and replies with the authoritative
// snapshot. The first session to attach becomes the room authority.
// A returning controller is rebound to its twin, so a reconnect during
// the twin's turn can still submit.
func (r *Room) Attach(sid SessionID, meta *domain.Member, sink EventSink) error {
	return r.call(func() error {
		if meta.Agent == "" {
			if tw, ok := r.roster.TwinOf(meta.User.ID); ok {
				meta.Agent = tw.ID
			}
		}
		r.sessions[sid] = &member{meta: meta, sink: sink}
		r.order = append(r.order, sid)
		if r.authority == "" {
			r.authority = sid
		}
		r.sendTo(sink, r.snapshot())
		r.broadcastExcept(sid, MemberEvent{Type: "member_joined", User: *meta.User})
		log.Info().Str("module", "core.room").Str("room", string(r.info.ID)).Str("sid", string(sid)).Msg("session attached")
		return nil
	})
}

// Detach drops a session. A detaching controller does not cancel an
// in-flight possessed turn; the deadline fallback handles it.
func (r *Room) Detach(sid SessionID) {
	_ = r.call(func() error {
		m, ok := r.sessions[sid]
		if !ok {
			return nil
		}
		delete(r.sessions, sid)
		for i, s := range r.order {
			if s == sid {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		log.Info().Str("module", "core.room").Str("room", string(r.info.ID)).Str("sid", string(sid)).Msg("session detached")
		if len(r.sessions) == 0 {
			r.cancel()
			if r.onEmpty != nil {
				r.onEmpty(r.info.ID)
			}
			return nil
		}
		r.broadcast(MemberEvent{Type: "member_left", User: *m.meta.User})
		if r.authority == sid {
			r.authority = r.order[0]
			r.broadcastRoster()
		}
		return nil
	})
}

func (r *Room) MemberCount() int {
	n := 0
	_ = r.call(func() error {
		n = len(r.sessions)
		return nil
	})
	return n
}

// Snapshot returns the same point-in-time view a joining client gets.
func (r *Room) Snapshot() SnapshotEvent {
	var snap SnapshotEvent
	_ = r.call(func() error {
		snap = r.snapshot()
		return nil
	})
	return snap
}

func (r *Room) TurnState() domain.TurnState {
	var ts domain.TurnState
	_ = r.call(func() error {
		ts = r.turnView()
		return nil
	})
	return ts
}

func (r *Room) Messages() []domain.Message {
	var msgs []domain.Message
	_ = r.call(func() error {
		msgs = r.log.Window(0)
		return nil
	})
	return msgs
}

// AddAgent places an agent in the roster. A twin owned by the calling
// session's user becomes that session's controlled agent.
func (r *Room) AddAgent(sid SessionID, agent domain.Agent, force bool) error {
	return r.call(func() error {
		m, ok := r.sessions[sid]
		if !ok {
			return ErrNotAttached
		}
		if err := r.roster.Add(agent, force); err != nil {
			return err
		}
		if agent.Kind == domain.AgentTwin && agent.Owner == m.meta.User.ID {
			m.meta.Agent = agent.ID
		}
		log.Info().Str("module", "core.room").Str("room", string(r.info.ID)).Str("agent", string(agent.ID)).Str("kind", string(agent.Kind)).Msg("agent added")
		r.broadcastRoster()
		r.kickstart()
		return nil
	})
}

func (r *Room) RemoveAgent(sid SessionID, id domain.AgentID) error {
	return r.call(func() error {
		if _, ok := r.sessions[sid]; !ok {
			return ErrNotAttached
		}
		if _, ok := r.roster.Remove(id); !ok {
			return ErrUnknownAgent
		}
		for _, m := range r.sessions {
			if m.meta.Agent == id {
				m.meta.Agent = ""
			}
		}
		r.broadcastRoster()
		if r.turn.acting == id {
			r.advance()
		}
		return nil
	})
}

// SetEnabled flips rotation eligibility. Disabling the floor holder
// forces exactly one advance.
func (r *Room) SetEnabled(id domain.AgentID, enabled bool) error {
	return r.call(func() error {
		if err := r.roster.SetEnabled(id, enabled); err != nil {
			return err
		}
		r.broadcastRoster()
		if !enabled && r.turn.acting == id && r.turn.mode != domain.TurnIdle {
			r.advance()
		} else if enabled {
			r.kickstart()
		}
		return nil
	})
}

// ClearPresets removes every NPC agent, leaving twins in place. Used
// when a room re-enters matchmaking.
func (r *Room) ClearPresets() {
	_ = r.call(func() error {
		if r.roster.ClearPresets() == 0 {
			return nil
		}
		r.broadcastRoster()
		if r.turn.acting != "" {
			if _, ok := r.roster.Get(r.turn.acting); !ok {
				r.advance()
			}
		}
		return nil
	})
}

func (r *Room) RosterSnapshot() []domain.Agent {
	var out []domain.Agent
	_ = r.call(func() error {
		out = r.roster.Snapshot()
		return nil
	})
	return out
}

// Control toggles room playback. Authority session only.
func (r *Room) Control(sid SessionID, pb domain.Playback) error {
	return r.call(func() error {
		if _, ok := r.sessions[sid]; !ok {
			return ErrNotAttached
		}
		if sid != r.authority {
			return ErrNotAuthority
		}
		if pb == r.playback {
			return nil
		}
		r.playback = pb
		log.Info().Str("module", "core.room").Str("room", string(r.info.ID)).Str("playback", string(pb)).Msg("playback changed")
		r.broadcast(PlaybackEvent{Type: "playback_changed", Playback: pb})
		switch pb {
		case domain.PlaybackRunning:
			if r.turn.mode == domain.TurnIdle {
				r.advance()
			}
		case domain.PlaybackPaused:
			// Freeze in place: the cursor stays so start resumes rotation.
			r.haltTurn(r.turn.acting)
		case domain.PlaybackStopped:
			r.haltTurn("")
		}
		return nil
	})
}

// haltTurn cancels the deadline, invalidates in-flight generation and
// parks the machine in idle with the given rotation cursor.
func (r *Room) haltTurn(cursor domain.AgentID) {
	r.stopTimer()
	r.turn.epoch++
	r.turn = turnState{mode: domain.TurnIdle, acting: cursor, epoch: r.turn.epoch}
	r.broadcastTurn()
}

func (r *Room) snapshot() SnapshotEvent {
	return SnapshotEvent{
		Type:      "snapshot",
		Room:      r.info.ID,
		RoomName:  r.info.Name,
		Roster:    r.roster.Snapshot(),
		Log:       r.log.Window(r.cfg.Window),
		Turn:      r.turnView(),
		Playback:  r.playback,
		Authority: r.authorityUser(),
		Count:     len(r.sessions),
	}
}

func (r *Room) authorityUser() domain.UserID {
	if m, ok := r.sessions[r.authority]; ok {
		return m.meta.User.ID
	}
	return ""
}

func (r *Room) broadcastRoster() {
	r.broadcast(RosterEvent{Type: "roster_changed", Roster: r.roster.Snapshot(), Authority: r.authorityUser()})
}

func (r *Room) sendTo(sink EventSink, v any) {
	if err := sink.Send(v); err != nil {
		log.Debug().Err(err).Str("module", "core.room").Str("room", string(r.info.ID)).Msg("send dropped")
	}
}

// broadcast is best-effort per session; a slow client loses the event
// instead of stalling the room.
func (r *Room) broadcast(v any) {
	dropped := 0
	for _, m := range r.sessions {
		if err := m.sink.Send(v); err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		log.Debug().Str("module", "core.room").Str("room", string(r.info.ID)).Int("dropped", dropped).Msg("broadcast drops")
	}
}

func (r *Room) broadcastExcept(skip SessionID, v any) {
	for sid, m := range r.sessions {
		if sid == skip {
			continue
		}
		if err := m.sink.Send(v); err != nil {
			log.Debug().Err(err).Str("module", "core.room").Str("room", string(r.info.ID)).Str("sid", string(sid)).Msg("send dropped")
		}
	}
}
