package core

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/parley/internal/domain"
)

type fakeSink struct {
	mu     sync.Mutex
	events []any
}

func (s *fakeSink) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, v)
	return nil
}

func (s *fakeSink) messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, e := range s.events {
		if ev, ok := e.(MessageEvent); ok {
			out = append(out, ev.Message)
		}
	}
	return out
}

func (s *fakeSink) errors() []ErrorEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ErrorEvent
	for _, e := range s.events {
		if ev, ok := e.(ErrorEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (s *fakeSink) suggestions() []SuggestionsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SuggestionsEvent
	for _, e := range s.events {
		if ev, ok := e.(SuggestionsEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (s *fakeSink) snapshots() []SnapshotEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SnapshotEvent
	for _, e := range s.events {
		if ev, ok := e.(SnapshotEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

type stubGen struct {
	mu      sync.Mutex
	failFor map[string]int
	calls   map[string]int
	block   chan struct{}
	slow    time.Duration
}

func (g *stubGen) Utterance(ctx context.Context, agent domain.Agent, window []domain.Message) (string, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.slow > 0 {
		select {
		case <-time.After(g.slow):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[agent.Name]++
	if g.failFor[agent.Name] > 0 {
		g.failFor[agent.Name]--
		return "", errors.New("generator boom")
	}
	return "line from " + agent.Name, nil
}

func (g *stubGen) Suggestions(ctx context.Context, agent domain.Agent, window []domain.Message, n int) ([]domain.Suggestion, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := make([]domain.Suggestion, n)
	for i := range out {
		out[i] = domain.Suggestion{Text: "option", Style: "warm", Rationale: "because"}
	}
	return out, nil
}

func (g *stubGen) callsFor(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func newTestRoom(t *testing.T, gen Generator, cfg TurnConfig) *Room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	room := NewRoom(ctx, &domain.Room{ID: "r1", Name: "test"}, gen, cfg, nil)
	go room.Run()
	return room
}

func attach(t *testing.T, room *Room, sid SessionID, user string) *fakeSink {
	t.Helper()
	sink := &fakeSink{}
	u := &domain.User{ID: domain.UserID(user), Name: user}
	if err := room.Attach(sid, domain.NewMember(u), sink); err != nil {
		t.Fatalf("attach %s: %v", sid, err)
	}
	return sink
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRotationVisitsEnabledAgentsOnly(t *testing.T) {
	gen := &stubGen{slow: 2 * time.Millisecond}
	room := newTestRoom(t, gen, TurnConfig{})
	attach(t, room, "s1", "u1")

	// A is a twin with possession off, so its turns generate autonomously.
	a := twin("A", "u1")
	a.Possessed = false
	if err := room.AddAgent("s1", a, false); err != nil {
		t.Fatal(err)
	}
	if err := room.AddAgent("s1", npc("B", true), false); err != nil {
		t.Fatal(err)
	}
	if err := room.AddAgent("s1", npc("C", false), false); err != nil {
		t.Fatal(err)
	}

	if err := room.Control("s1", domain.PlaybackRunning); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, "six messages", func() bool { return len(room.Messages()) >= 6 })
	if err := room.Control("s1", domain.PlaybackPaused); err != nil {
		t.Fatal(err)
	}

	msgs := room.Messages()
	want := []domain.AgentID{"A", "B", "A", "B", "A", "B"}
	for i, w := range want {
		if msgs[i].Agent != w {
			t.Fatalf("message %d from %s, want %s (got order %v)", i, msgs[i].Agent, w, agentOrder(msgs[:6]))
		}
	}
	for _, m := range msgs {
		if m.Agent == "C" {
			t.Fatal("disabled agent C spoke")
		}
	}
}

func agentOrder(msgs []domain.Message) []domain.AgentID {
	out := make([]domain.AgentID, len(msgs))
	for i, m := range msgs {
		out[i] = m.Agent
	}
	return out
}

func TestPossessedTurnSubmitValidation(t *testing.T) {
	gen := &stubGen{}
	room := newTestRoom(t, gen, TurnConfig{Timeout: time.Minute})
	attach(t, room, "s1", "u1")
	attach(t, room, "s2", "u2")

	if err := room.AddAgent("s1", twin("A", "u1"), false); err != nil {
		t.Fatal(err)
	}
	if err := room.Control("s1", domain.PlaybackRunning); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "awaiting human", func() bool {
		return room.TurnState().Mode == domain.TurnAwaitingHuman
	})

	ts := room.TurnState()
	if ts.Agent != "A" || ts.Deadline == nil {
		t.Fatalf("unexpected turn state %+v", ts)
	}

	if err := room.Submit("s2", "not my turn", ""); err != ErrNotYourTurn {
		t.Fatalf("foreign submit: got %v", err)
	}
	if err := room.Submit("s1", "   ", ""); err != ErrEmptyText {
		t.Fatalf("blank submit: got %v", err)
	}
	if got := room.TurnState(); got.Mode != domain.TurnAwaitingHuman {
		t.Fatalf("rejected submissions changed state to %s", got.Mode)
	}

	if err := room.Submit("s1", "hello there", "ref-1"); err != nil {
		t.Fatalf("valid submit: %v", err)
	}
	msgs := room.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if !m.Human || m.Auto || m.Agent != "A" || m.Author != "u1" || m.ClientRef != "ref-1" {
		t.Fatalf("unexpected message %+v", m)
	}
}

func TestDeadlineSubstitutesAutoReply(t *testing.T) {
	gen := &stubGen{}
	room := newTestRoom(t, gen, TurnConfig{Timeout: 20 * time.Millisecond})
	attach(t, room, "s1", "u1")

	if err := room.AddAgent("s1", twin("A", "u1"), false); err != nil {
		t.Fatal(err)
	}
	if err := room.AddAgent("s1", npc("B", true), false); err != nil {
		t.Fatal(err)
	}
	if err := room.Control("s1", domain.PlaybackRunning); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, "substituted message", func() bool {
		msgs := room.Messages()
		return len(msgs) >= 1
	})
	m := room.Messages()[0]
	if m.Agent != "A" || !m.Auto || m.Human {
		t.Fatalf("first message should be A's auto substitution, got %+v", m)
	}
}

func TestLateSubmissionAfterExpiryRejected(t *testing.T) {
	gen := &stubGen{block: make(chan struct{})}
	room := newTestRoom(t, gen, TurnConfig{Timeout: 15 * time.Millisecond})
	attach(t, room, "s1", "u1")

	if err := room.AddAgent("s1", twin("A", "u1"), false); err != nil {
		t.Fatal(err)
	}
	if err := room.Control("s1", domain.PlaybackRunning); err != nil {
		t.Fatal(err)
	}

	// The deadline fires while the fallback generation is still blocked,
	// so the room sits in autonomous_pending for A's turn.
	waitFor(t, time.Second, "fallback generation", func() bool {
		return room.TurnState().Mode == domain.TurnAutonomous
	})
	if err := room.Submit("s1", "too late", ""); err != ErrWrongMode {
		t.Fatalf("late submission: got %v, want ErrWrongMode", err)
	}
	if len(room.Messages()) != 0 {
		t.Fatal("late submission appended a message")
	}
	close(gen.block)

	// Exactly one message for that turn: the substitution.
	waitFor(t, time.Second, "substituted message", func() bool {
		return len(room.Messages()) >= 1
	})
	if m := room.Messages()[0]; !m.Auto || m.Human {
		t.Fatalf("expected auto substitution, got %+v", m)
	}
}

func TestSubmitThenExpiryAppendsExactlyOne(t *testing.T) {
	gen := &stubGen{}
	room := newTestRoom(t, gen, TurnConfig{Timeout: 100 * time.Millisecond})
	attach(t, room, "s1", "u1")

	if err := room.AddAgent("s1", twin("A", "u1"), false); err != nil {
		t.Fatal(err)
	}
	if err := room.Control("s1", domain.PlaybackRunning); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "awaiting human", func() bool {
		return room.TurnState().Mode == domain.TurnAwaitingHuman
	})
	if err := room.Submit("s1", "made it", ""); err != nil {
		t.Fatal(err)
	}
	// Freeze the room so the old timer, were it still alive, would be
	// the only thing able to append.
	if err := room.Control("s1", domain.PlaybackPaused); err != nil {
		t.Fatal(err)
	}
	time.Sleep(250 * time.Millisecond)
	msgs := room.Messages()
	if len(msgs) != 1 || !msgs[0].Human {
		t.Fatalf("expected exactly the human message, got %+v", msgs)
	}
}

func TestDisableActingAgentAdvancesOnce(t *testing.T) {
	gen := &stubGen{block: make(chan struct{})}
	room := newTestRoom(t, gen, TurnConfig{})
	attach(t, room, "s1", "u1")

	for _, a := range []domain.Agent{npc("A", true), npc("B", true), npc("C", true)} {
		if err := room.AddAgent("s1", a, false); err != nil {
			t.Fatal(err)
		}
	}
	if err := room.Control("s1", domain.PlaybackRunning); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "A holds the floor", func() bool {
		return room.TurnState().Agent == "A"
	})

	if err := room.SetEnabled("A", false); err != nil {
		t.Fatal(err)
	}
	if ts := room.TurnState(); ts.Agent != "B" {
		t.Fatalf("floor on %s after disabling A, want B", ts.Agent)
	}

	// A's in-flight generation is stale now; releasing it must not
	// produce a message from A.
	close(gen.block)
	waitFor(t, time.Second, "B's message", func() bool {
		return len(room.Messages()) >= 1
	})
	if m := room.Messages()[0]; m.Agent != "B" {
		t.Fatalf("first message from %s, want B", m.Agent)
	}
	for _, m := range room.Messages() {
		if m.Agent == "A" {
			t.Fatal("stale generation from disabled A was appended")
		}
	}
}

func TestGenerationFailureRetriesThenSkips(t *testing.T) {
	gen := &stubGen{failFor: map[string]int{"A": 2}}
	room := newTestRoom(t, gen, TurnConfig{})
	sink := attach(t, room, "s1", "u1")

	if err := room.AddAgent("s1", npc("A", true), false); err != nil {
		t.Fatal(err)
	}
	if err := room.AddAgent("s1", npc("B", true), false); err != nil {
		t.Fatal(err)
	}
	if err := room.Control("s1", domain.PlaybackRunning); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, "B's message", func() bool {
		return len(room.Messages()) >= 1
	})
	if err := room.Control("s1", domain.PlaybackPaused); err != nil {
		t.Fatal(err)
	}

	if got := gen.callsFor("A"); got < 2 {
		t.Fatalf("A generation attempted %d times, want at least 2 (one retry)", got)
	}
	if m := room.Messages()[0]; m.Agent != "B" {
		t.Fatalf("first message from %s, want B after skipping A", m.Agent)
	}
	// Only the first round fails, so exactly one turn was skipped.
	skips := 0
	for _, e := range sink.errors() {
		if e.Code == "generation_failed" {
			skips++
		}
	}
	if skips != 1 {
		t.Fatalf("got %d generation_failed events, want 1", skips)
	}

	// Sequence numbers stay strictly increasing across the
	// failure-retry-skip cycle.
	var last uint64
	for _, m := range room.Messages() {
		if m.Seq <= last {
			t.Fatalf("non-monotonic seq %d after %d", m.Seq, last)
		}
		last = m.Seq
	}
}

func TestTogglePossessionMidWaitFallsThrough(t *testing.T) {
	gen := &stubGen{}
	room := newTestRoom(t, gen, TurnConfig{Timeout: time.Minute})
	attach(t, room, "s1", "u1")

	if err := room.AddAgent("s1", twin("A", "u1"), false); err != nil {
		t.Fatal(err)
	}
	if err := room.Control("s1", domain.PlaybackRunning); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "awaiting human", func() bool {
		return room.TurnState().Mode == domain.TurnAwaitingHuman
	})

	if err := room.TogglePossession("s2", "A", false); err != ErrNotAttached {
		t.Fatalf("foreign toggle: got %v", err)
	}
	if err := room.TogglePossession("s1", "A", false); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "generated message", func() bool {
		return len(room.Messages()) >= 1
	})
	m := room.Messages()[0]
	if m.Agent != "A" || m.Human || m.Auto {
		t.Fatalf("fall-through message should be plain generated, got %+v", m)
	}
}

func TestReattachRegainsTwinControl(t *testing.T) {
	gen := &stubGen{}
	room := newTestRoom(t, gen, TurnConfig{Timeout: time.Minute})
	attach(t, room, "s1", "u1")
	attach(t, room, "s2", "u2")

	if err := room.AddAgent("s1", twin("A", "u1"), false); err != nil {
		t.Fatal(err)
	}
	if err := room.Control("s1", domain.PlaybackRunning); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "awaiting human", func() bool {
		return room.TurnState().Mode == domain.TurnAwaitingHuman
	})

	// Controller drops mid-turn; the twin's turn keeps waiting.
	room.Detach("s1")
	if ts := room.TurnState(); ts.Mode != domain.TurnAwaitingHuman {
		t.Fatalf("detach changed turn state to %s", ts.Mode)
	}

	// Same session id rejoins and must control its twin again.
	attach(t, room, "s1", "u1")
	if err := room.Submit("s1", "back again", ""); err != nil {
		t.Fatalf("submit after rejoin: %v", err)
	}
	msgs := room.Messages()
	if len(msgs) != 1 || !msgs[0].Human || msgs[0].Author != "u1" {
		t.Fatalf("unexpected messages after rejoin: %+v", msgs)
	}
}

func TestPossessionReEnabledReclaimsTurn(t *testing.T) {
	gen := &stubGen{block: make(chan struct{})}
	room := newTestRoom(t, gen, TurnConfig{Timeout: time.Minute})
	attach(t, room, "s1", "u1")

	if err := room.AddAgent("s1", twin("A", "u1"), false); err != nil {
		t.Fatal(err)
	}
	if err := room.Control("s1", domain.PlaybackRunning); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "awaiting human", func() bool {
		return room.TurnState().Mode == domain.TurnAwaitingHuman
	})

	if err := room.TogglePossession("s1", "A", false); err != nil {
		t.Fatal(err)
	}
	if ts := room.TurnState(); ts.Mode != domain.TurnAutonomous {
		t.Fatalf("toggle off left mode %s", ts.Mode)
	}

	// Re-enable while the fall-through generation is still in flight:
	// the turn goes back to waiting and the result must be discarded.
	if err := room.TogglePossession("s1", "A", true); err != nil {
		t.Fatal(err)
	}
	ts := room.TurnState()
	if ts.Mode != domain.TurnAwaitingHuman || ts.Deadline == nil {
		t.Fatalf("reclaim did not restore waiting state: %+v", ts)
	}

	close(gen.block)
	time.Sleep(50 * time.Millisecond)
	if msgs := room.Messages(); len(msgs) != 0 {
		t.Fatalf("stale generation appended after reclaim: %+v", msgs)
	}
	if got := room.TurnState(); got.Mode != domain.TurnAwaitingHuman {
		t.Fatalf("stale result changed turn state to %s", got.Mode)
	}
}

func TestSuggestionsSingleFlight(t *testing.T) {
	gen := &stubGen{block: make(chan struct{})}
	room := newTestRoom(t, gen, TurnConfig{Timeout: time.Minute, Suggestions: 3})
	sink := attach(t, room, "s1", "u1")
	attach(t, room, "s2", "u2")

	if err := room.AddAgent("s1", twin("A", "u1"), false); err != nil {
		t.Fatal(err)
	}
	if err := room.Control("s1", domain.PlaybackRunning); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "awaiting human", func() bool {
		return room.TurnState().Mode == domain.TurnAwaitingHuman
	})

	if err := room.RequestSuggestions("s2"); err != ErrNotYourTurn {
		t.Fatalf("foreign request: got %v", err)
	}
	if err := room.RequestSuggestions("s1"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := room.RequestSuggestions("s1"); err != ErrSuggestionBusy {
		t.Fatalf("second request: got %v, want ErrSuggestionBusy", err)
	}
	close(gen.block)

	waitFor(t, time.Second, "suggestions delivered", func() bool {
		return len(sink.suggestions()) == 1
	})
	items := sink.suggestions()[0].Items
	if len(items) != 3 {
		t.Fatalf("got %d suggestions, want 3", len(items))
	}
	if room.TurnState().Mode != domain.TurnAwaitingHuman {
		t.Fatal("suggestion request mutated turn state")
	}
}

func TestEditMessageAuthorOnly(t *testing.T) {
	gen := &stubGen{}
	room := newTestRoom(t, gen, TurnConfig{Timeout: time.Minute})
	attach(t, room, "s1", "u1")
	attach(t, room, "s2", "u2")

	if err := room.AddAgent("s1", twin("A", "u1"), false); err != nil {
		t.Fatal(err)
	}
	if err := room.Control("s1", domain.PlaybackRunning); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "awaiting human", func() bool {
		return room.TurnState().Mode == domain.TurnAwaitingHuman
	})
	if err := room.Submit("s1", "orignal text", ""); err != nil {
		t.Fatal(err)
	}
	seq := room.Messages()[0].Seq

	if err := room.EditMessage("s2", seq, "hijacked"); err != ErrNotAuthor {
		t.Fatalf("foreign edit: got %v", err)
	}
	if err := room.EditMessage("s1", seq, "original text"); err != nil {
		t.Fatalf("author edit: %v", err)
	}
	m := room.Messages()[0]
	if m.Text != "original text" || !m.Edited || m.Seq != seq {
		t.Fatalf("edit result %+v", m)
	}
}

func TestAuthorityHandoffOnDetach(t *testing.T) {
	gen := &stubGen{}
	room := newTestRoom(t, gen, TurnConfig{})
	attach(t, room, "s1", "u1")
	attach(t, room, "s2", "u2")

	if err := room.Control("s2", domain.PlaybackRunning); err != ErrNotAuthority {
		t.Fatalf("non-authority control: got %v", err)
	}
	room.Detach("s1")
	if err := room.Control("s2", domain.PlaybackRunning); err != nil {
		t.Fatalf("control after handoff: %v", err)
	}
}

func TestLateJoinersReceiveIdenticalSnapshots(t *testing.T) {
	gen := &stubGen{}
	room := newTestRoom(t, gen, TurnConfig{})
	attach(t, room, "s1", "u1")

	if err := room.AddAgent("s1", npc("A", true), false); err != nil {
		t.Fatal(err)
	}
	if err := room.AddAgent("s1", npc("B", true), false); err != nil {
		t.Fatal(err)
	}
	if err := room.Control("s1", domain.PlaybackRunning); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, "ten messages", func() bool {
		return len(room.Messages()) >= 10
	})
	if err := room.Control("s1", domain.PlaybackPaused); err != nil {
		t.Fatal(err)
	}

	s2 := attach(t, room, "s2", "u2")
	s3 := attach(t, room, "s3", "u3")

	snap2 := s2.snapshots()[0]
	snap3 := s3.snapshots()[0]
	if !reflect.DeepEqual(snap2.Log, snap3.Log) {
		t.Fatal("late joiners saw different logs")
	}
	if !reflect.DeepEqual(snap2.Roster, snap3.Roster) {
		t.Fatal("late joiners saw different rosters")
	}
	if !reflect.DeepEqual(snap2.Turn, snap3.Turn) || snap2.Playback != snap3.Playback {
		t.Fatal("late joiners saw different turn/playback state")
	}
	if len(snap2.Log) < 10 {
		t.Fatalf("snapshot log too short: %d", len(snap2.Log))
	}
}

func TestClearPresetsAdvancesIfActingRemoved(t *testing.T) {
	gen := &stubGen{block: make(chan struct{})}
	room := newTestRoom(t, gen, TurnConfig{Timeout: time.Minute})
	attach(t, room, "s1", "u1")

	if err := room.AddAgent("s1", npc("A", true), false); err != nil {
		t.Fatal(err)
	}
	if err := room.AddAgent("s1", twin("T", "u1"), false); err != nil {
		t.Fatal(err)
	}
	if err := room.Control("s1", domain.PlaybackRunning); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "A holds the floor", func() bool {
		return room.TurnState().Agent == "A"
	})

	room.ClearPresets()
	waitFor(t, time.Second, "floor moved to twin", func() bool {
		ts := room.TurnState()
		return ts.Agent == "T" && ts.Mode == domain.TurnAwaitingHuman
	})
	if agents := room.RosterSnapshot(); len(agents) != 1 || agents[0].ID != "T" {
		t.Fatalf("roster after clear: %+v", agents)
	}
}
