// Package store persists game records. The session engine behaves
// identically against any backend, including the in-memory one.
package store

import (
	"context"
	"errors"
	"time"
)

// Record is the persisted shape of one game.
type Record struct {
	GameID            string    `json:"game_id"`
	DwarfController   string    `json:"dwarf_controller"`
	TrollController   string    `json:"troll_controller"`
	Moves             []string  `json:"moves"`
	Ruleset           string    `json:"ruleset"`
	StartingPositions string    `json:"starting_positions"`
	Complete          bool      `json:"complete"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Clone returns a deep copy; callers may mutate it freely.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Moves = append([]string(nil), r.Moves...)
	return &cp
}

var ErrNotFound = errors.New("game record not found")

// Store is the durable collaborator of the session engine.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	FindOne(ctx context.Context, gameID string) (*Record, error)
	AppendMove(ctx context.Context, gameID, move string) error
	MarkComplete(ctx context.Context, gameID string) error
}
