package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

func (ctl *SignalWSController) handleCreateRoom(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type payload struct {
		Type string `json:"type"`
		Name string `json:"name" validate:"required,max=36"`
	}
	var p payload
	if err := ctl.bind(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad create_room payload")
		ctl.reject(conn, "bad_payload", "create_room requires a name")
		return
	}

	room := ctl.Orch.Rooms.CreateRoom(domain.RoomName(p.Name))
	ctl.sendJSON(conn, struct {
		Type string        `json:"type"`
		Room domain.RoomID `json:"room"`
	}{"room_created", room.Room().ID})
}

// handleJoin attaches the session; the room replies with the full
// authoritative snapshot so late joiners converge with everyone else.
func (ctl *SignalWSController) handleJoin(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type payload struct {
		Type string `json:"type"`
		Room string `json:"room" validate:"required"`
		Name string `json:"name,omitempty" validate:"omitempty,max=36"`
	}
	var p payload
	if err := ctl.bind(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.reject(conn, "bad_payload", "join_room requires a room id")
		return
	}

	if p.Name != "" {
		if err := ctl.Orch.Registry.UpdateName(sid, p.Name); err != nil {
			ctl.reject(conn, "invalid_name", err.Error())
			return
		}
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).Msg("join")
	if _, err := ctl.Orch.Join(sid, domain.RoomID(p.Room), conn); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", p.Room).Msg("join failed")
		ctl.reject(conn, "room_not_found", err.Error())
		return
	}
}

// handleLeave exits the current room; the connection stays up.
func (ctl *SignalWSController) handleLeave(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.Leave(sid)
	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
	}{"left"})
}
