package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

// Client is one session against a parley server. Run consumes the
// event stream and keeps a mirror of the room's authoritative state; all
// mutating calls are plain wire sends, acknowledged only by the state
// they produce in that stream.
type Client struct {
	conn *websocket.Conn

	mu          sync.Mutex
	rec         *Reconciler
	roster      []domain.Agent
	turn        domain.TurnState
	playback    domain.Playback
	authority   domain.UserID
	suggestions []domain.Suggestion
	errs        []core.ErrorEvent
}

func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn, rec: NewReconciler()}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Run reads server events until the connection drops or ctx ends.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch env.Type {
	case "snapshot":
		var ev core.SnapshotEvent
		if json.Unmarshal(data, &ev) == nil {
			c.roster = ev.Roster
			c.turn = ev.Turn
			c.playback = ev.Playback
			c.authority = ev.Authority
			c.rec.Reset(ev.Log)
		}
	case "message_appended":
		var ev core.MessageEvent
		if json.Unmarshal(data, &ev) == nil {
			c.rec.Apply(ev.Message)
		}
	case "message_edited":
		var ev core.MessageEditedEvent
		if json.Unmarshal(data, &ev) == nil {
			c.rec.ApplyEdit(ev.Seq, ev.Text)
		}
	case "turn_state_changed":
		var ev core.TurnEvent
		if json.Unmarshal(data, &ev) == nil {
			c.turn = ev.Turn
		}
	case "roster_changed":
		var ev core.RosterEvent
		if json.Unmarshal(data, &ev) == nil {
			c.roster = ev.Roster
			c.authority = ev.Authority
		}
	case "playback_changed":
		var ev core.PlaybackEvent
		if json.Unmarshal(data, &ev) == nil {
			c.playback = ev.Playback
		}
	case "suggestions":
		var ev core.SuggestionsEvent
		if json.Unmarshal(data, &ev) == nil {
			c.suggestions = ev.Items
		}
	case "error":
		var ev core.ErrorEvent
		if json.Unmarshal(data, &ev) == nil {
			c.errs = append(c.errs, ev)
		}
	}
}

func (c *Client) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

type msg map[string]any

func (c *Client) Identify(name string) error {
	return c.send(msg{"type": "identify", "name": name})
}

func (c *Client) CreateRoom(name string) error {
	return c.send(msg{"type": "create_room", "name": name})
}

func (c *Client) Join(roomID string) error {
	return c.send(msg{"type": "join_room", "room": roomID})
}

func (c *Client) Leave() error {
	return c.send(msg{"type": "leave"})
}

// Submit renders the text locally at once and sends it with a
// correlation token; the authoritative echo replaces the local copy.
func (c *Client) Submit(text string) error {
	ref := uuid.NewString()
	c.mu.Lock()
	c.rec.LocalSubmit(ref, text)
	c.mu.Unlock()
	return c.send(msg{"type": "submit_text", "text": text, "client_ref": ref})
}

func (c *Client) SelectSuggestion(text string) error {
	ref := uuid.NewString()
	c.mu.Lock()
	c.rec.LocalSubmit(ref, text)
	c.mu.Unlock()
	return c.send(msg{"type": "select_suggestion", "text": text, "client_ref": ref})
}

func (c *Client) EditMessage(seq uint64, text string) error {
	return c.send(msg{"type": "edit_message", "seq": seq, "text": text})
}

func (c *Client) TogglePossession(agent domain.AgentID, enabled bool) error {
	return c.send(msg{"type": "toggle_possession", "agent": string(agent), "enabled": enabled})
}

func (c *Client) RequestSuggestions() error {
	return c.send(msg{"type": "request_suggestions"})
}

func (c *Client) AddPreset(presetID string, force bool) error {
	return c.send(msg{"type": "add_agent", "preset": presetID, "force": force})
}

func (c *Client) AddTwin(profileRef string) error {
	return c.send(msg{"type": "add_agent", "profile": profileRef})
}

func (c *Client) RemoveAgent(agent domain.AgentID) error {
	return c.send(msg{"type": "remove_agent", "agent": string(agent)})
}

func (c *Client) SetEnabled(agent domain.AgentID, enabled bool) error {
	return c.send(msg{"type": "set_enabled", "agent": string(agent), "enabled": enabled})
}

func (c *Client) ClearPresets() error {
	return c.send(msg{"type": "clear_presets"})
}

func (c *Client) Control(action string) error {
	return c.send(msg{"type": "control", "action": action})
}

// ActAs marks which agent's human-authored broadcasts are the session's
// own for echo reconciliation.
func (c *Client) ActAs(agent domain.AgentID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec.SetSelf(agent)
}

func (c *Client) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.Lines()
}

func (c *Client) TurnState() domain.TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn
}

func (c *Client) Roster() []domain.Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Agent, len(c.roster))
	copy(out, c.roster)
	return out
}

func (c *Client) Playback() domain.Playback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playback
}

func (c *Client) Suggestions() []domain.Suggestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Suggestion, len(c.suggestions))
	copy(out, c.suggestions)
	return out
}

// Errors drains the rejected-action events received so far.
func (c *Client) Errors() []core.ErrorEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.errs
	c.errs = nil
	return out
}
