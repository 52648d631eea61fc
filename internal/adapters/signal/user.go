package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

// handleIdentify is the handshake: set the display name, answer whoami.
// Reports whether the handshake succeeded.
func (ctl *SignalWSController) handleIdentify(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) bool {
	return ctl.handleRename(sid, conn, data)
}

func (ctl *SignalWSController) handleRename(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) bool {
	type payload struct {
		Type string `json:"type"`
		Name string `json:"name" validate:"required,max=36"`
	}
	var p payload
	if err := ctl.bind(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.reject(conn, "bad_payload", "a name is required")
		return false
	}

	if err := ctl.Orch.Registry.UpdateName(sid, p.Name); err != nil {
		ctl.reject(conn, "invalid_name", err.Error())
		return false
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", p.Name).Msg("rename")
	ctl.handleWhoAmI(sid, conn)
	return true
}

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	user := ctl.Orch.Registry.GetOrCreateUser(sid)

	resp := struct {
		Type string          `json:"type"`
		User domain.User     `json:"user"`
		Room domain.RoomID   `json:"room,omitempty"`
		Name domain.RoomName `json:"room_name,omitempty"`
	}{
		Type: "whoami",
		User: *user,
	}
	if room, ok := ctl.Orch.RoomOf(sid); ok {
		resp.Room = room.Room().ID
		resp.Name = room.Room().Name
	}
	ctl.sendJSON(conn, resp)
}
