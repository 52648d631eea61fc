package signal

import (
	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
	}{"pong"})
}

// handleControl toggles room playback; the room enforces that only the
// authority session may do this.
func (ctl *SignalWSController) handleControl(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type payload struct {
		Type   string `json:"type"`
		Action string `json:"action" validate:"required,oneof=start pause stop"`
	}
	var p payload
	if err := ctl.bind(data, &p); err != nil {
		ctl.reject(conn, "bad_payload", "control action must be start, pause or stop")
		return
	}
	room, ok := ctl.roomOf(sid, conn)
	if !ok {
		return
	}
	var pb domain.Playback
	switch p.Action {
	case "start":
		pb = domain.PlaybackRunning
	case "pause":
		pb = domain.PlaybackPaused
	case "stop":
		pb = domain.PlaybackStopped
	}
	if err := room.Control(sid, pb); err != nil {
		ctl.rejectErr(conn, err)
	}
}
