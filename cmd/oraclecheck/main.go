package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thudgame/relay/internal/oracle"
)

// Smoke-checks an oracle binary: runs one query of each kind against a
// short sample log and prints what came back. Usage:
//
//	ORACLE_PATH=/path/to/oracle oraclecheck [move ...]
func main() {
	path := os.Getenv("ORACLE_PATH")
	if path == "" {
		log.Fatal("ORACLE_PATH is required")
	}
	timeout := 10 * time.Second
	if v := os.Getenv("ORACLE_TIMEOUT_MS"); v != "" {
		if d, err := time.ParseDuration(v + "ms"); err == nil && d > 0 {
			timeout = d
		}
	}

	moves := os.Args[1:]
	if len(moves) == 0 {
		moves = []string{"dA6-O6"}
	}

	client, err := oracle.NewClient(path, timeout, zap.NewNop())
	if err != nil {
		log.Fatalf("oracle init error: %v", err)
	}
	log.Printf("querying %s with log [%s]", path, strings.Join(moves, " "))

	ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
	defer cancel()

	legal, err := client.Validate(ctx, moves)
	if err != nil {
		log.Printf("validate error: %v", err)
	} else {
		log.Printf("validate ok: legal=%v", legal)
	}

	full, err := client.Captures(ctx, moves)
	if err != nil {
		log.Printf("captures error: %v", err)
	} else {
		log.Printf("captures ok: %s", full)
	}

	next, err := client.NextMove(ctx, moves)
	switch {
	case errors.Is(err, oracle.ErrNoMove):
		log.Printf("next_move: no move available (game over)")
	case err != nil:
		log.Printf("next_move error: %v", err)
	default:
		log.Printf("next_move ok: %s", next)
	}
}
