// Package game owns the per-game session engine: the authoritative move
// log, turn order, the validate/captures/commit workflow against the rule
// oracle, and the registry of live sessions.
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/thudgame/relay/internal/notation"
	"github.com/thudgame/relay/internal/oracle"
	"github.com/thudgame/relay/internal/store"
)

// Controller says who drives a side.
type Controller string

const (
	ControllerHuman Controller = "human"
	ControllerCPU   Controller = "cpu"
)

// ErrIllegalMove is the oracle's verdict on a well-formed but illegal
// submission. The move log is untouched.
var ErrIllegalMove = errors.New("illegal move")

// Result of one accepted submission.
type Result struct {
	// Committed is the notation that entered the log: the submission,
	// possibly extended with forced capture suffixes.
	Committed string
	// CPUMove is the oracle-authored follow-up committed in the same
	// workflow when the opposing side is CPU-driven; empty otherwise.
	CPUMove string
}

// Session is one game. The mutex serializes the whole oracle workflow
// for the session: no second query is ever issued while one is
// outstanding, and log mutation happens only inside it. Sessions are
// independent of each other.
type Session struct {
	id        string
	ruleset   string
	positions string
	dwarf     Controller
	troll     Controller

	mu       sync.Mutex
	moves    []string
	complete bool

	rules  oracle.Rules
	store  store.Store // optional write-through persistence
	logger *zap.Logger
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Ruleset() string   { return s.ruleset }
func (s *Session) Positions() string { return s.positions }

// Controller reports who drives the given side.
func (s *Session) Controller(side notation.Side) Controller {
	if side == notation.SideTroll {
		return s.troll
	}
	return s.dwarf
}

// TurnToAct is purely a function of log length: dwarfs act on even
// lengths, trolls on odd.
func (s *Session) TurnToAct() notation.Side {
	s.mu.Lock()
	defer s.mu.Unlock()
	return notation.TurnToAct(len(s.moves))
}

// Moves returns a snapshot of the committed log.
func (s *Session) Moves() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.moves...)
}

func (s *Session) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

// Record snapshots the session into its persisted shape.
func (s *Session) Record() *store.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &store.Record{
		GameID:            s.id,
		DwarfController:   string(s.dwarf),
		TrollController:   string(s.troll),
		Moves:             append([]string(nil), s.moves...),
		Ruleset:           s.ruleset,
		StartingPositions: s.positions,
		Complete:          s.complete,
	}
}

// Attempt runs the confirmed-move workflow for a client submission:
// parse, tentatively extend a working copy of the log, VALIDATE, extend
// with forced captures, then commit atomically. A rejection of any kind
// leaves the authoritative log untouched. When the now-active side is
// CPU-driven the oracle's response is committed in the same workflow and
// returned alongside.
func (s *Session) Attempt(ctx context.Context, raw string) (Result, error) {
	ply, err := notation.Parse(raw)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// COMPLETE is terminal; the oracle is not consulted again.
	if s.complete {
		return Result{}, ErrIllegalMove
	}

	committed, err := s.commitLocked(ctx, ply.String())
	if err != nil {
		return Result{}, err
	}
	res := Result{Committed: committed}

	if s.controllerToActLocked() == ControllerCPU {
		cpuMove, err := s.respondLocked(ctx)
		switch {
		case err == nil:
			res.CPUMove = cpuMove
		case errors.Is(err, oracle.ErrNoMove):
			// Terminal for the CPU side; the human move stands.
		default:
			s.logger.Warn("cpu_response_error",
				zap.String("game_id", s.id),
				zap.Error(err),
			)
		}
	}
	return res, nil
}

// WaitForCPU commits exactly one oracle move iff the side to act is
// CPU-driven; otherwise it is a no-op. The session lock plus the turn
// check make it mutually exclusive with the auto-response in Attempt, so
// a single turn can never receive two CPU commits.
func (s *Session) WaitForCPU(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.complete || s.controllerToActLocked() != ControllerCPU {
		return "", false, nil
	}
	move, err := s.respondLocked(ctx)
	if err != nil {
		if errors.Is(err, oracle.ErrNoMove) {
			return "", false, nil
		}
		return "", false, err
	}
	return move, true, nil
}

func (s *Session) controllerToActLocked() Controller {
	if notation.TurnToAct(len(s.moves)) == notation.SideTroll {
		return s.troll
	}
	return s.dwarf
}

// commitLocked is steps 1-5 of the submission workflow. The returned
// string is what actually entered the log.
func (s *Session) commitLocked(ctx context.Context, move string) (string, error) {
	working := make([]string, len(s.moves), len(s.moves)+1)
	copy(working, s.moves)
	working = append(working, move)

	legal, err := s.rules.Validate(ctx, working)
	if err != nil {
		s.logger.Error("oracle_error",
			zap.String("game_id", s.id),
			zap.String("move", move),
			zap.Error(err),
		)
		return "", err
	}
	if !legal {
		s.logger.Info("move_reject",
			zap.String("game_id", s.id),
			zap.String("move", move),
			zap.Int("ply", len(s.moves)),
		)
		return "", ErrIllegalMove
	}

	committed := move
	full, err := s.rules.Captures(ctx, working)
	if err != nil {
		s.logger.Error("oracle_error",
			zap.String("game_id", s.id),
			zap.String("move", move),
			zap.Error(err),
		)
		return "", err
	}
	if notation.Extends(move, full) {
		if _, perr := notation.Parse(full); perr != nil {
			return "", fmt.Errorf("%w: bad captures extension %q", oracle.ErrUnavailable, full)
		}
		committed = full
	}

	// The single append is the commit; the extended notation is written
	// once, in final form. Never pop-then-push.
	s.moves = append(s.moves, committed)

	if s.store != nil {
		if err := s.store.AppendMove(ctx, s.id, committed); err != nil {
			s.logger.Error("move_persist_error",
				zap.String("game_id", s.id),
				zap.String("move", committed),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("move_commit",
		zap.String("game_id", s.id),
		zap.String("move", committed),
		zap.Int("ply", len(s.moves)),
	)
	return committed, nil
}

// respondLocked asks the oracle for its move and commits it through the
// same workflow a client submission takes. An oracle report of "no move"
// marks the session complete.
func (s *Session) respondLocked(ctx context.Context) (string, error) {
	snapshot := append([]string(nil), s.moves...)
	next, err := s.rules.NextMove(ctx, snapshot)
	if err != nil {
		if errors.Is(err, oracle.ErrNoMove) {
			s.markCompleteLocked(ctx)
		}
		return "", err
	}
	ply, perr := notation.Parse(next)
	if perr != nil {
		return "", fmt.Errorf("%w: unparsable oracle move %q", oracle.ErrUnavailable, next)
	}

	committed, err := s.commitLocked(ctx, ply.String())
	if err != nil {
		return "", err
	}
	s.logger.Info("cpu_respond",
		zap.String("game_id", s.id),
		zap.String("move", committed),
	)
	return committed, nil
}

func (s *Session) markCompleteLocked(ctx context.Context) {
	if s.complete {
		return
	}
	s.complete = true
	if s.store != nil {
		if err := s.store.MarkComplete(ctx, s.id); err != nil {
			s.logger.Error("complete_persist_error",
				zap.String("game_id", s.id),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("game_complete", zap.String("game_id", s.id))
}
