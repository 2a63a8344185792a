package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

// memstore keeps records in a mutex-guarded map. It is the default
// backend when no REDIS_URL or DATABASE_URL is configured, and the
// workhorse of the test suite.
type memstore struct {
	mu    sync.RWMutex
	games map[string]*Record
}

func NewMemory() Store {
	return &memstore{games: make(map[string]*Record)}
}

func (m *memstore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || strings.TrimSpace(rec.GameID) == "" {
		return ErrNotFound
	}
	cp := rec.Clone()
	cp.UpdatedAt = time.Now()
	m.mu.Lock()
	m.games[cp.GameID] = cp
	m.mu.Unlock()
	return nil
}

func (m *memstore) FindOne(ctx context.Context, gameID string) (*Record, error) {
	m.mu.RLock()
	rec, ok := m.games[gameID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *memstore) AppendMove(ctx context.Context, gameID, move string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.games[gameID]
	if !ok {
		return ErrNotFound
	}
	rec.Moves = append(rec.Moves, move)
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *memstore) MarkComplete(ctx context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.games[gameID]
	if !ok {
		return ErrNotFound
	}
	rec.Complete = true
	rec.UpdatedAt = time.Now()
	return nil
}
