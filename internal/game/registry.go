package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thudgame/relay/internal/layout"
	"github.com/thudgame/relay/internal/oracle"
	"github.com/thudgame/relay/internal/store"
)

// ErrNotFound marks a command referencing an unknown game identifier.
var ErrNotFound = errors.New("game not found")

// CreateOptions parameterize a new game. Ruleset picks a starting layout
// by name; empty means the registry default.
type CreateOptions struct {
	Dwarf   Controller
	Troll   Controller
	Ruleset string
}

// RegistryConfig wires the registry's collaborators.
type RegistryConfig struct {
	Rules   oracle.Rules
	Store   store.Store // nil means in-process only
	Layouts *layout.Catalog
	Ruleset string // empty resolves to the catalog default
	// MaxGames caps live sessions; zero means unlimited.
	MaxGames int
	Logger   *zap.Logger
}

// Registry creates and resolves game sessions. Its lock guards only the
// map structure; each session carries its own serialization lock, so
// unrelated games never queue behind each other.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	rules   oracle.Rules
	store   store.Store
	layouts *layout.Catalog
	ruleset string
	max     int
	logger  *zap.Logger
}

func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Rules == nil {
		return nil, fmt.Errorf("rules oracle required")
	}
	if cfg.Layouts == nil {
		return nil, fmt.Errorf("layout catalog required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	// Fail now rather than on the first create.
	if _, err := cfg.Layouts.Positions(cfg.Ruleset); err != nil {
		return nil, err
	}
	return &Registry{
		sessions: make(map[string]*Session),
		rules:    cfg.Rules,
		store:    cfg.Store,
		layouts:  cfg.Layouts,
		ruleset:  cfg.Ruleset,
		max:      cfg.MaxGames,
		logger:   logger,
	}, nil
}

// Create provisions a new session with an empty move log and a snapshot
// of the starting positions.
func (r *Registry) Create(ctx context.Context, opts CreateOptions) (*Session, error) {
	dwarf, err := normalizeController(opts.Dwarf)
	if err != nil {
		return nil, err
	}
	troll, err := normalizeController(opts.Troll)
	if err != nil {
		return nil, err
	}
	ruleset := strings.TrimSpace(opts.Ruleset)
	if ruleset == "" {
		ruleset = r.ruleset
	}
	if ruleset == "" {
		ruleset = layout.DefaultRuleset
	}
	positions, err := r.layouts.Positions(ruleset)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:        newGameID(),
		ruleset:   ruleset,
		positions: positions,
		dwarf:     dwarf,
		troll:     troll,
		moves:     []string{},
		rules:     r.rules,
		store:     r.store,
		logger:    r.logger,
	}

	r.mu.Lock()
	if r.max > 0 && len(r.sessions) >= r.max {
		r.mu.Unlock()
		return nil, fmt.Errorf("session capacity reached (%d)", r.max)
	}
	r.sessions[s.id] = s
	r.mu.Unlock()

	if r.store != nil {
		rec := s.Record()
		rec.CreatedAt = time.Now().UTC()
		rec.UpdatedAt = rec.CreatedAt
		if err := r.store.Save(ctx, rec); err != nil {
			r.logger.Error("game_persist_error",
				zap.String("game_id", s.id),
				zap.Error(err),
			)
		}
	}

	r.logger.Info("game_create",
		zap.String("game_id", s.id),
		zap.String("dwarf_controller", string(dwarf)),
		zap.String("troll_controller", string(troll)),
		zap.String("ruleset", s.ruleset),
	)
	return s, nil
}

// Get resolves a session by identifier. Unknown identifiers fall through
// to the durable store when one is configured, so persisted games resume
// transparently.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}
	if r.store == nil {
		return nil, ErrNotFound
	}

	rec, err := r.store.FindOne(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resume game %s: %w", id, err)
	}
	s = r.sessionFromRecord(rec)

	r.mu.Lock()
	if cur, ok := r.sessions[id]; ok {
		// Another resolver rehydrated first; theirs is authoritative.
		s = cur
	} else {
		r.sessions[id] = s
	}
	r.mu.Unlock()

	r.logger.Info("game_resume",
		zap.String("game_id", id),
		zap.Int("ply", len(rec.Moves)),
	)
	return s, nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) sessionFromRecord(rec *store.Record) *Session {
	dwarf, err := normalizeController(Controller(rec.DwarfController))
	if err != nil {
		dwarf = ControllerHuman
	}
	troll, err := normalizeController(Controller(rec.TrollController))
	if err != nil {
		troll = ControllerHuman
	}
	return &Session{
		id:        rec.GameID,
		ruleset:   rec.Ruleset,
		positions: rec.StartingPositions,
		dwarf:     dwarf,
		troll:     troll,
		moves:     append([]string(nil), rec.Moves...),
		complete:  rec.Complete,
		rules:     r.rules,
		store:     r.store,
		logger:    r.logger,
	}
}

func normalizeController(c Controller) (Controller, error) {
	switch Controller(strings.ToLower(strings.TrimSpace(string(c)))) {
	case "":
		return ControllerHuman, nil
	case ControllerHuman:
		return ControllerHuman, nil
	case ControllerCPU:
		return ControllerCPU, nil
	default:
		return "", fmt.Errorf("unknown controller kind %q", c)
	}
}

// newGameID prefers time-ordered v1 identifiers; collisions across the
// process are what matters, not the version.
func newGameID() string {
	if id, err := uuid.NewUUID(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
