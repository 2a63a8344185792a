package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Postgres persists game records in a thud_games table; the move log is
// a jsonb array so appends stay a single statement.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (s *Postgres) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Postgres) Save(ctx context.Context, rec *Record) error {
	if rec == nil || strings.TrimSpace(rec.GameID) == "" {
		return ErrNotFound
	}
	movesRaw, err := json.Marshal(rec.Moves)
	if err != nil {
		return err
	}
	q := `INSERT INTO thud_games (
	    game_id, dwarf_controller, troll_controller, moves,
	    ruleset, starting_positions, complete, created_at, updated_at
	  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	  ON CONFLICT (game_id) DO UPDATE SET
	    dwarf_controller=EXCLUDED.dwarf_controller,
	    troll_controller=EXCLUDED.troll_controller,
	    moves=EXCLUDED.moves,
	    ruleset=EXCLUDED.ruleset,
	    starting_positions=EXCLUDED.starting_positions,
	    complete=EXCLUDED.complete,
	    updated_at=now()`
	_, err = s.db.ExecContext(ctx, q,
		rec.GameID,
		rec.DwarfController, rec.TrollController,
		string(movesRaw),
		rec.Ruleset, rec.StartingPositions,
		rec.Complete, rec.CreatedAt,
	)
	return err
}

func (s *Postgres) FindOne(ctx context.Context, gameID string) (*Record, error) {
	q := `SELECT game_id, dwarf_controller, troll_controller, moves,
	             ruleset, starting_positions, complete, created_at, updated_at
	      FROM thud_games WHERE game_id = $1`
	var rec Record
	var movesRaw []byte
	err := s.db.QueryRowContext(ctx, q, gameID).Scan(
		&rec.GameID,
		&rec.DwarfController, &rec.TrollController,
		&movesRaw,
		&rec.Ruleset, &rec.StartingPositions,
		&rec.Complete, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(movesRaw) > 0 {
		if err := json.Unmarshal(movesRaw, &rec.Moves); err != nil {
			return nil, fmt.Errorf("decode move log: %w", err)
		}
	}
	return &rec, nil
}

func (s *Postgres) AppendMove(ctx context.Context, gameID, move string) error {
	q := `UPDATE thud_games
	      SET moves = moves || to_jsonb($2::text), updated_at = now()
	      WHERE game_id = $1`
	res, err := s.db.ExecContext(ctx, q, gameID, move)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Postgres) MarkComplete(ctx context.Context, gameID string) error {
	q := `UPDATE thud_games SET complete = TRUE, updated_at = now() WHERE game_id = $1`
	res, err := s.db.ExecContext(ctx, q, gameID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
