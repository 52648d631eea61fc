// Package orch routes session commands into room actors and
// materializes agents from their external sources.
package orch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/app"
	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/dkeye/parley/internal/persona"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Catalog  persona.Catalog
	Profiles persona.ProfileStore
}

// Join attaches a session to a room, leaving its previous room first.
func (o *Orchestrator) Join(sid core.SessionID, roomID domain.RoomID, sink core.EventSink) (*core.Room, error) {
	room, ok := o.Rooms.GetRoom(roomID)
	if !ok {
		return nil, fmt.Errorf("room %s does not exist", roomID)
	}
	if prevID, ok := o.Registry.RoomOf(sid); ok && prevID != roomID {
		o.Leave(sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(prevID)).Msg("left previous room")
	}
	user := o.Registry.GetOrCreateUser(sid)
	if err := room.Attach(sid, domain.NewMember(user), sink); err != nil {
		return nil, err
	}
	o.Registry.UpdateRoom(sid, roomID)
	return room, nil
}

func (o *Orchestrator) Leave(sid core.SessionID) {
	roomID, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	if room, ok := o.Rooms.GetRoom(roomID); ok {
		room.Detach(sid)
	}
	o.Registry.RemoveRoom(sid)
}

// RoomOf resolves the room a session is currently attached to.
func (o *Orchestrator) RoomOf(sid core.SessionID) (*core.Room, bool) {
	roomID, ok := o.Registry.RoomOf(sid)
	if !ok {
		return nil, false
	}
	return o.Rooms.GetRoom(roomID)
}

// MaterializeAgent builds an Agent from a preset template or a saved
// twin profile. Exactly one of presetID / profileRef must be set.
func (o *Orchestrator) MaterializeAgent(ctx context.Context, sid core.SessionID, presetID, profileRef string) (domain.Agent, error) {
	switch {
	case presetID != "" && profileRef == "":
		preset, ok := o.Catalog.Get(presetID)
		if !ok {
			return domain.Agent{}, fmt.Errorf("unknown preset %q", presetID)
		}
		return domain.Agent{
			ID:       domain.AgentID(uuid.NewString()),
			Name:     preset.Name,
			Kind:     domain.AgentNPC,
			Enabled:  true,
			SourceID: preset.ID,
			Profile:  preset.Profile,
		}, nil
	case profileRef != "" && presetID == "":
		profile, err := o.Profiles.Get(ctx, profileRef)
		if err != nil {
			return domain.Agent{}, fmt.Errorf("load profile %q: %w", profileRef, err)
		}
		user := o.Registry.GetOrCreateUser(sid)
		return domain.Agent{
			ID:        domain.AgentID(uuid.NewString()),
			Name:      profile.Name,
			Kind:      domain.AgentTwin,
			Enabled:   true,
			Possessed: true,
			Owner:     user.ID,
			SourceID:  profile.ID,
			Profile:   profile.Payload,
		}, nil
	default:
		return domain.Agent{}, fmt.Errorf("exactly one of preset or profile is required")
	}
}
