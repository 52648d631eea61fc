package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/app/orch"
	"github.com/dkeye/parley/internal/config"
	"github.com/dkeye/parley/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// SignalWSController multiplexes one WebSocket per client session onto
// the room protocol.
type SignalWSController struct {
	Orch     *orch.Orchestrator
	Cfg      *config.Config
	limiter  *RoomRateLimiter
	validate *validator.Validate
}

func NewSignalWSController(o *orch.Orchestrator, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Orch:     o,
		Cfg:      cfg,
		limiter:  NewRoomRateLimiter(10, 10*time.Second),
		validate: validator.New(),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var (
	_ core.SignalConnection = (*WsSignalConn)(nil)
	_ core.EventSink        = (*WsSignalConn)(nil)
)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Send implements core.EventSink; delivery is non-blocking so a slow
// client never stalls a room broadcast.
func (c *WsSignalConn) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.TrySend(b)
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctl.Orch.Registry.GetOrCreateUser(sid)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(sid, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	if err := c.Send(v); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("sendJSON dropped")
	}
}

// reject reports a failed client action; nothing is silently dropped.
func (ctl *SignalWSController) reject(c *WsSignalConn, code, detail string) {
	ctl.sendJSON(c, core.ErrorEvent{Type: "error", Code: code, Detail: detail})
}

func (ctl *SignalWSController) rejectErr(c *WsSignalConn, err error) {
	ctl.reject(c, errCode(err), err.Error())
}

func errCode(err error) string {
	switch {
	case errors.Is(err, core.ErrWrongMode):
		return "wrong_mode"
	case errors.Is(err, core.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, core.ErrEmptyText):
		return "empty_text"
	case errors.Is(err, core.ErrTextTooLong):
		return "text_too_long"
	case errors.Is(err, core.ErrUnknownAgent):
		return "unknown_agent"
	case errors.Is(err, core.ErrDuplicateAgent):
		return "duplicate_agent"
	case errors.Is(err, core.ErrNotPossessable), errors.Is(err, core.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, core.ErrNotAuthor):
		return "not_author"
	case errors.Is(err, core.ErrUnknownMessage):
		return "unknown_message"
	case errors.Is(err, core.ErrSuggestionBusy):
		return "already_generating"
	case errors.Is(err, core.ErrNotAuthority):
		return "not_authority"
	case errors.Is(err, core.ErrNotAttached):
		return "not_in_room"
	case errors.Is(err, core.ErrRoomClosed):
		return "room_closed"
	default:
		return "internal"
	}
}

// bind unmarshals and validates an inbound payload.
func (ctl *SignalWSController) bind(data []byte, p any) error {
	if err := json.Unmarshal(data, p); err != nil {
		return err
	}
	return ctl.validate.Struct(p)
}

// roomOf resolves the caller's current room or rejects.
func (ctl *SignalWSController) roomOf(sid core.SessionID, c *WsSignalConn) (*core.Room, bool) {
	room, ok := ctl.Orch.RoomOf(sid)
	if !ok {
		ctl.reject(c, "not_in_room", "join a room first")
		return nil, false
	}
	return room, true
}
