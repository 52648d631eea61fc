package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

// handleSubmit carries both submit_text and select_suggestion; the room
// decides whether the submission is still valid for the current turn.
func (ctl *SignalWSController) handleSubmit(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type payload struct {
		Type      string `json:"type"`
		Text      string `json:"text" validate:"required,max=4096"`
		ClientRef string `json:"client_ref,omitempty" validate:"omitempty,max=64"`
	}
	var p payload
	if err := ctl.bind(data, &p); err != nil {
		ctl.reject(conn, "bad_payload", "submit requires text")
		return
	}
	user := ctl.Orch.Registry.GetOrCreateUser(sid)
	if !ctl.limiter.Allow(user.ID) {
		ctl.reject(conn, "rate_limited", "too many submissions, slow down")
		return
	}
	room, ok := ctl.roomOf(sid, conn)
	if !ok {
		return
	}
	if err := room.Submit(sid, p.Text, p.ClientRef); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("submit rejected")
		ctl.rejectErr(conn, err)
	}
}

func (ctl *SignalWSController) handleEdit(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type payload struct {
		Type string `json:"type"`
		Seq  uint64 `json:"seq" validate:"required"`
		Text string `json:"text" validate:"required,max=4096"`
	}
	var p payload
	if err := ctl.bind(data, &p); err != nil {
		ctl.reject(conn, "bad_payload", "edit_message requires seq and text")
		return
	}
	room, ok := ctl.roomOf(sid, conn)
	if !ok {
		return
	}
	if err := room.EditMessage(sid, p.Seq, p.Text); err != nil {
		ctl.rejectErr(conn, err)
	}
}

func (ctl *SignalWSController) handleTogglePossession(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type payload struct {
		Type    string `json:"type"`
		Agent   string `json:"agent" validate:"required"`
		Enabled bool   `json:"enabled"`
	}
	var p payload
	if err := ctl.bind(data, &p); err != nil {
		ctl.reject(conn, "bad_payload", "toggle_possession requires an agent")
		return
	}
	room, ok := ctl.roomOf(sid, conn)
	if !ok {
		return
	}
	if err := room.TogglePossession(sid, domain.AgentID(p.Agent), p.Enabled); err != nil {
		ctl.rejectErr(conn, err)
	}
}

func (ctl *SignalWSController) handleRequestSuggestions(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	room, ok := ctl.roomOf(sid, conn)
	if !ok {
		return
	}
	if err := room.RequestSuggestions(sid); err != nil {
		ctl.rejectErr(conn, err)
	}
}
