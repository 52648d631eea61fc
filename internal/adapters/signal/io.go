package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/core"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ping := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// signalResult reports how a frame was handled: whether it completed
// the identify handshake, or was a protocol violation that should end
// the connection.
type signalResult int

const (
	signalOK signalResult = iota
	signalIdentified
	signalFatal
)

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.Leave(sid)
		ctl.Orch.Registry.Unbind(sid)
		c.Close()
	}()

	identified := false
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			switch ctl.handleSignal(ctx, sid, c, data, identified) {
			case signalIdentified:
				identified = true
			case signalFatal:
				log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("malformed handshake, closing connection")
				return
			}
		}
	}
}

// handleSignal dispatches one inbound frame. A malformed envelope
// before the handshake completes is an unrecoverable protocol
// violation; afterwards it only earns an error event.
func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte, identified bool) signalResult {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.reject(c, "bad_payload", "malformed envelope")
		if !identified {
			return signalFatal
		}
		return signalOK
	}

	switch env.Type {
	case "identify":
		if ctl.handleIdentify(sid, c, data) {
			return signalIdentified
		}
	case "create_room":
		ctl.handleCreateRoom(sid, c, data)
	case "join_room":
		ctl.handleJoin(sid, c, data)
	case "leave":
		ctl.handleLeave(sid, c)
	case "submit_text":
		ctl.handleSubmit(sid, c, data)
	case "select_suggestion":
		// Picking a suggestion is the same act as typing it.
		ctl.handleSubmit(sid, c, data)
	case "edit_message":
		ctl.handleEdit(sid, c, data)
	case "toggle_possession":
		ctl.handleTogglePossession(sid, c, data)
	case "request_suggestions":
		ctl.handleRequestSuggestions(sid, c)
	case "add_agent":
		ctl.handleAddAgent(ctx, sid, c, data)
	case "remove_agent":
		ctl.handleRemoveAgent(sid, c, data)
	case "set_enabled":
		ctl.handleSetEnabled(sid, c, data)
	case "clear_presets":
		ctl.handleClearPresets(sid, c)
	case "control":
		ctl.handleControl(sid, c, data)
	case "rename":
		ctl.handleRename(sid, c, data)
	case "whoami":
		ctl.handleWhoAmI(sid, c)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.reject(c, "unknown_type", env.Type)
	}
	return signalOK
}
