package app

import (
	"context"
	"sync"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl creates room actors and garbage-collects them when
// their last session detaches.
type RoomManagerImpl struct {
	ctx context.Context
	gen core.Generator
	cfg core.TurnConfig

	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.Room
}

func NewRoomManager(ctx context.Context, gen core.Generator, cfg core.TurnConfig) core.RoomManager {
	return &RoomManagerImpl{
		ctx:   ctx,
		gen:   gen,
		cfg:   cfg,
		rooms: make(map[domain.RoomID]*core.Room),
	}
}

func (m *RoomManagerImpl) CreateRoom(name domain.RoomName) *core.Room {
	info := &domain.Room{ID: domain.RoomID(uuid.NewString()), Name: name}
	room := core.NewRoom(m.ctx, info, m.gen, m.cfg, m.forget)
	m.mu.Lock()
	m.rooms[info.ID] = room
	m.mu.Unlock()
	go room.Run()
	log.Info().Str("module", "app.rooms").Str("room", string(info.ID)).Str("name", string(name)).Msg("room created")
	return room
}

func (m *RoomManagerImpl) GetRoom(id domain.RoomID) (*core.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

func (m *RoomManagerImpl) List() []core.RoomInfo {
	m.mu.RLock()
	rooms := make([]*core.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()
	// Counts are fetched lock-free: MemberCount blocks on the room loop,
	// which may be calling back into forget.
	out := make([]core.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, core.RoomInfo{
			ID:          r.Room().ID,
			Name:        r.Room().Name,
			MemberCount: r.MemberCount(),
		})
	}
	return out
}

func (m *RoomManagerImpl) StopRoom(id domain.RoomID) {
	m.mu.Lock()
	room, ok := m.rooms[id]
	delete(m.rooms, id)
	m.mu.Unlock()
	if ok {
		room.Stop()
	}
}

// forget runs on the room goroutine when the room empties out.
func (m *RoomManagerImpl) forget(id domain.RoomID) {
	m.mu.Lock()
	delete(m.rooms, id)
	m.mu.Unlock()
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("empty room collected")
}
