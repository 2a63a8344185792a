// Package dispatch adapts wire events to the session engine. It performs
// no game logic: inbound commands resolve a session and call it, outcomes
// map one-to-one onto outbound events.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/thudgame/relay/internal/archive"
	"github.com/thudgame/relay/internal/game"
	"github.com/thudgame/relay/internal/notation"
	"github.com/thudgame/relay/internal/oracle"
	"github.com/thudgame/relay/pkg/thudwire"
)

// Emitter delivers one outbound event to the client connection.
type Emitter func(env thudwire.Envelope)

type Dispatcher struct {
	registry *game.Registry
	archive  *archive.Notifier // nil-safe, optional
	logger   *zap.Logger
}

func New(registry *game.Registry, notifier *archive.Notifier, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: registry, archive: notifier, logger: logger}
}

// Handle routes one inbound envelope and emits every resulting outcome.
// Errors never escape: each failure becomes an explicit event so a client
// always learns the fate of its command.
func (d *Dispatcher) Handle(ctx context.Context, env thudwire.Envelope, emit Emitter) {
	switch env.Event {
	case thudwire.EvCreateGame:
		d.createGame(ctx, env.Data, emit)
	case thudwire.EvAttemptMove:
		d.attemptMove(ctx, env.Data, emit)
	case thudwire.EvWaitForCPU:
		d.waitForCPU(ctx, env.Data, emit)
	default:
		emit(thudwire.NewEnvelope(thudwire.EvError, thudwire.ErrorPayload{
			Code:    thudwire.CodeBadRequest,
			Message: "unknown event " + env.Event,
		}))
	}
}

func (d *Dispatcher) createGame(ctx context.Context, data json.RawMessage, emit Emitter) {
	var req thudwire.CreateGame
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			emit(badRequest("malformed create_game payload"))
			return
		}
	}

	s, err := d.registry.Create(ctx, game.CreateOptions{
		Dwarf:   game.Controller(req.DwarfController),
		Troll:   game.Controller(req.TrollController),
		Ruleset: req.Ruleset,
	})
	if err != nil {
		d.logger.Warn("game_create_error", zap.Error(err))
		emit(badRequest(err.Error()))
		return
	}

	emit(thudwire.NewEnvelope(thudwire.EvNewGameCreated, thudwire.NewGameCreated{
		GameID:    s.ID(),
		Positions: s.Positions(),
	}))
}

func (d *Dispatcher) attemptMove(ctx context.Context, data json.RawMessage, emit Emitter) {
	var req thudwire.AttemptMove
	if err := json.Unmarshal(data, &req); err != nil {
		emit(badRequest("malformed attempt_move payload"))
		return
	}

	s, err := d.registry.Get(ctx, req.GameID)
	if err != nil {
		d.emitLookupFailure(req.GameID, err, emit)
		return
	}

	res, err := s.Attempt(ctx, req.Move)
	if err != nil {
		emit(thudwire.NewEnvelope(thudwire.EvMoveRejected, thudwire.MoveRejected{
			GameID:    req.GameID,
			Requested: req.Move,
			Reason:    rejectionCode(err),
		}))
		return
	}

	emit(thudwire.NewEnvelope(thudwire.EvMoveAccepted, thudwire.MoveAccepted{
		GameID:    req.GameID,
		Requested: res.Committed,
	}))
	if res.CPUMove != "" {
		emit(thudwire.NewEnvelope(thudwire.EvCPUResponse, thudwire.CPUResponse{
			GameID:    req.GameID,
			Responded: res.CPUMove,
		}))
	}
	d.archiveIfComplete(ctx, s)
}

func (d *Dispatcher) waitForCPU(ctx context.Context, data json.RawMessage, emit Emitter) {
	var req thudwire.WaitForCPU
	if err := json.Unmarshal(data, &req); err != nil {
		emit(badRequest("malformed wait_for_cpu payload"))
		return
	}

	s, err := d.registry.Get(ctx, req.GameID)
	if err != nil {
		d.emitLookupFailure(req.GameID, err, emit)
		return
	}

	move, moved, err := s.WaitForCPU(ctx)
	if err != nil {
		d.logger.Error("cpu_wait_error",
			zap.String("game_id", req.GameID),
			zap.Error(err),
		)
		// The failure can also be the oracle rejecting its own
		// generated move; keep the taxonomy honest.
		emit(thudwire.NewEnvelope(thudwire.EvError, thudwire.ErrorPayload{
			Code:   rejectionCode(err),
			GameID: req.GameID,
		}))
		return
	}
	if !moved {
		// Not a CPU turn, or the CPU already answered; nothing to say.
		return
	}
	emit(thudwire.NewEnvelope(thudwire.EvCPUResponse, thudwire.CPUResponse{
		GameID:    req.GameID,
		Responded: move,
	}))
	d.archiveIfComplete(ctx, s)
}

func (d *Dispatcher) emitLookupFailure(gameID string, err error, emit Emitter) {
	code := thudwire.CodeSessionNotFound
	if !errors.Is(err, game.ErrNotFound) {
		// Store trouble, not an unknown id; still fails without side
		// effects but is an infrastructure fault.
		d.logger.Error("game_lookup_error", zap.String("game_id", gameID), zap.Error(err))
		code = thudwire.CodeInternalError
	}
	emit(thudwire.NewEnvelope(thudwire.EvError, thudwire.ErrorPayload{
		Code:   code,
		GameID: gameID,
	}))
}

func (d *Dispatcher) archiveIfComplete(ctx context.Context, s *game.Session) {
	if !s.Complete() {
		return
	}
	if err := d.archive.GameCompleted(ctx, s.Record()); err != nil {
		d.logger.Error("archive_notify_error",
			zap.String("game_id", s.ID()),
			zap.Error(err),
		)
	}
}

// rejectionCode distinguishes rule rejections from infrastructure faults
// for telemetry; the client sees a rejection either way.
func rejectionCode(err error) string {
	var perr *notation.ParseError
	switch {
	case errors.As(err, &perr):
		return thudwire.CodeParseError
	case errors.Is(err, oracle.ErrUnavailable):
		return thudwire.CodeOracleUnavailable
	default:
		return thudwire.CodeIllegalMove
	}
}

func badRequest(msg string) thudwire.Envelope {
	return thudwire.NewEnvelope(thudwire.EvError, thudwire.ErrorPayload{
		Code:    thudwire.CodeBadRequest,
		Message: msg,
	})
}
