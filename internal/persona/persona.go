// Package persona holds the personality-generation collaborator and the
// sources agents are materialized from: the NPC preset catalog and the
// saved digital-twin profile store. Profiles are opaque payloads; the
// session protocol never interprets them.
package persona

import (
	"context"
	"errors"
	"time"
)

var ErrProfileNotFound = errors.New("profile not found")

// Preset is a scripted NPC persona template. ID is the stable key used
// for duplicate-add rejection.
type Preset struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Profile string `json:"profile"`
}

type Catalog interface {
	Get(id string) (Preset, bool)
	List() []Preset
}

// Profile is a saved digital-twin persona.
type Profile struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

type ProfileStore interface {
	Save(ctx context.Context, p Profile) error
	Get(ctx context.Context, id string) (Profile, error)
	List(ctx context.Context, owner string) ([]Profile, error)
	Close() error
}

type memCatalog struct {
	presets []Preset
}

// NewCatalog returns the built-in NPC preset catalog.
func NewCatalog() Catalog {
	return &memCatalog{presets: []Preset{
		{ID: "npc-barkeep", Name: "Mirela", Profile: "A weary tavern keeper who has heard every story twice and believes none of them. Short sentences, dry wit, always circles back to what the patron actually wants."},
		{ID: "npc-cartographer", Name: "Oswin", Profile: "An over-enthusiastic map maker convinced every conversation is secretly about geography. Rambles, apologizes, rambles again."},
		{ID: "npc-skeptic", Name: "Dr. Halloway", Profile: "A retired logician who challenges every claim with a polite counter-question. Never rude, never convinced."},
		{ID: "npc-dreamer", Name: "Suvi", Profile: "A poet who answers sideways, in images. Warm, distractible, occasionally devastatingly on point."},
	}}
}

func (c *memCatalog) Get(id string) (Preset, bool) {
	for _, p := range c.presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

func (c *memCatalog) List() []Preset {
	out := make([]Preset, len(c.presets))
	copy(out, c.presets)
	return out
}
