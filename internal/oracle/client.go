// Package oracle consults the external Thud rule authority. The oracle is
// a line-oriented subprocess: the full move log goes to its stdin, one
// result line comes back. One invocation is one process lifecycle; the
// engine never reimplements rule logic in-process.
package oracle

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thudgame/relay/internal/notation"
)

// Kind selects how the oracle's single output line is interpreted.
type Kind string

const (
	KindValidate Kind = "validate"
	KindNextMove Kind = "next_move"
	KindCaptures Kind = "captures"
)

// noMovePrefix is the sentinel the oracle emits for an invalid position
// or a side with no legal move; diagnostic detail follows the prefix.
const noMovePrefix = "invalid_move"

const defaultQueryTimeout = 10 * time.Second

// ErrUnavailable marks an infrastructure fault: the oracle failed to
// start, timed out, or produced unparsable output. Callers must treat it
// as "cannot confirm legality" and leave the move log untouched.
var ErrUnavailable = errors.New("oracle unavailable")

// ErrNoMove is returned by NextMove when the oracle reports that the side
// to move has no legal move.
var ErrNoMove = errors.New("no move available")

// Rules is the capability surface of the rule authority. The process
// transport is the default; tests and embedded deployments substitute
// their own implementation.
type Rules interface {
	Validate(ctx context.Context, moves []string) (bool, error)
	NextMove(ctx context.Context, moves []string) (string, error)
	Captures(ctx context.Context, moves []string) (string, error)
}

// Client runs one oracle process per query.
type Client struct {
	path    string
	timeout time.Duration
	logger  *zap.Logger
}

func NewClient(path string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("oracle path required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("oracle binary check: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{path: path, timeout: timeout, logger: logger}, nil
}

// Validate interprets the oracle's verdict on the last logged move. The
// moves slice must already include the move under evaluation.
func (c *Client) Validate(ctx context.Context, moves []string) (bool, error) {
	line, err := c.Ask(ctx, moves, KindValidate)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	// Some oracle builds answer an invalid log with the sentinel line
	// instead of a boolean.
	if strings.HasPrefix(line, noMovePrefix) {
		return false, nil
	}
	return false, fmt.Errorf("%w: unexpected validate output %q", ErrUnavailable, line)
}

// NextMove returns the oracle's chosen move for the side to act on the
// given log.
func (c *Client) NextMove(ctx context.Context, moves []string) (string, error) {
	line, err := c.Ask(ctx, moves, KindNextMove)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(line, noMovePrefix) {
		return "", ErrNoMove
	}
	if _, perr := notation.Parse(line); perr != nil {
		return "", fmt.Errorf("%w: unparsable next_move %q", ErrUnavailable, line)
	}
	return line, nil
}

// Captures returns the last logged move extended with every forced
// capture suffix the oracle determines applies; with none it echoes the
// move unchanged.
func (c *Client) Captures(ctx context.Context, moves []string) (string, error) {
	line, err := c.Ask(ctx, moves, KindCaptures)
	if err != nil {
		return "", err
	}
	if _, perr := notation.Parse(line); perr != nil {
		return "", fmt.Errorf("%w: unparsable captures output %q", ErrUnavailable, line)
	}
	return line, nil
}

// Ask performs exactly one request/response round trip: spawn, write the
// log newline-separated, close stdin, read until the oracle yields its
// line or exits. Unknown kinds are a programming error and are rejected
// before any process is spawned.
func (c *Client) Ask(ctx context.Context, moves []string, kind Kind) (string, error) {
	switch kind {
	case KindValidate, KindNextMove, KindCaptures:
	default:
		return "", fmt.Errorf("query kind not permitted: %q", kind)
	}

	qctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(qctx, c.path, string(kind))
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", fmt.Errorf("%w: create stdin pipe: %v", ErrUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return "", fmt.Errorf("%w: create stdout pipe: %v", ErrUnavailable, err)
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return "", fmt.Errorf("%w: start oracle: %v", ErrUnavailable, err)
	}

	go func() {
		if len(moves) > 0 {
			_, _ = io.WriteString(stdin, strings.Join(moves, "\n")+"\n")
		}
		_ = stdin.Close()
	}()

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		r := bufio.NewReader(stdout)
		for {
			line, err := r.ReadString('\n')
			line = strings.TrimSpace(line)
			if line != "" {
				ch <- result{line: line}
				return
			}
			if err != nil {
				ch <- result{err: err}
				return
			}
		}
	}()

	select {
	case <-qctx.Done():
		_ = cmd.Wait()
		c.logger.Warn("oracle_timeout",
			zap.String("kind", string(kind)),
			zap.Int("ply_count", len(moves)),
			zap.Duration("elapsed", time.Since(started)),
		)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, qctx.Err())
	case res := <-ch:
		// The process is done at this point as far as the protocol is
		// concerned; release it before returning.
		cancel()
		_ = cmd.Wait()
		if res.err != nil {
			c.logger.Warn("oracle_no_output",
				zap.String("kind", string(kind)),
				zap.Int("ply_count", len(moves)),
				zap.Error(res.err),
			)
			return "", fmt.Errorf("%w: read oracle output: %v", ErrUnavailable, res.err)
		}
		c.logger.Debug("oracle_query",
			zap.String("kind", string(kind)),
			zap.Int("ply_count", len(moves)),
			zap.Duration("elapsed", time.Since(started)),
		)
		return res.line, nil
	}
}
