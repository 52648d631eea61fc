package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

func (ctl *SignalWSController) handleAddAgent(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type payload struct {
		Type    string `json:"type"`
		Preset  string `json:"preset,omitempty"`
		Profile string `json:"profile,omitempty"`
		Force   bool   `json:"force,omitempty"`
	}
	var p payload
	if err := ctl.bind(data, &p); err != nil {
		ctl.reject(conn, "bad_payload", "add_agent requires preset or profile")
		return
	}
	room, ok := ctl.roomOf(sid, conn)
	if !ok {
		return
	}
	agent, err := ctl.Orch.MaterializeAgent(ctx, sid, p.Preset, p.Profile)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("materialize agent failed")
		ctl.reject(conn, "agent_source", err.Error())
		return
	}
	if err := room.AddAgent(sid, agent, p.Force); err != nil {
		ctl.rejectErr(conn, err)
	}
}

func (ctl *SignalWSController) handleRemoveAgent(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type payload struct {
		Type  string `json:"type"`
		Agent string `json:"agent" validate:"required"`
	}
	var p payload
	if err := ctl.bind(data, &p); err != nil {
		ctl.reject(conn, "bad_payload", "remove_agent requires an agent")
		return
	}
	room, ok := ctl.roomOf(sid, conn)
	if !ok {
		return
	}
	if err := room.RemoveAgent(sid, domain.AgentID(p.Agent)); err != nil {
		ctl.rejectErr(conn, err)
	}
}

func (ctl *SignalWSController) handleSetEnabled(
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
		ctl.reject(conn, "bad_payload", "set_enabled requires an agent")
		return
	}
	room, ok := ctl.roomOf(sid, conn)
	if !ok {
		return
	}
	if err := room.SetEnabled(domain.AgentID(p.Agent), p.Enabled); err != nil {
		ctl.rejectErr(conn, err)
	}
}

func (ctl *SignalWSController) handleClearPresets(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	room, ok := ctl.roomOf(sid, conn)
	if !ok {
		return
	}
	room.ClearPresets()
}
