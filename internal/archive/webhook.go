// Package archive notifies an external endpoint when a game completes.
// The relay never blocks game traffic on archival: callers log failures
// and move on.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/thudgame/relay/internal/store"
)

const (
	defaultTimeout = 5 * time.Second
	retryMax       = 3
)

// Notifier POSTs completed game records to a webhook URL. A nil Notifier
// is valid and does nothing, so wiring stays unconditional.
type Notifier struct {
	url     string
	http    *fasthttp.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewNotifier returns nil when url is empty (archival disabled).
func NewNotifier(url string, logger *zap.Logger) *Notifier {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		url: strings.TrimSpace(url),
		http: &fasthttp.Client{
			ReadTimeout:     defaultTimeout,
			WriteTimeout:    defaultTimeout,
			MaxConnsPerHost: 16,
		},
		timeout: defaultTimeout,
		logger:  logger,
	}
}

// GameCompleted delivers the final record, retrying transient failures.
func (n *Notifier) GameCompleted(ctx context.Context, rec *store.Record) error {
	if n == nil || rec == nil {
		return nil
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal game record: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(n.url)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	var lastErr error
	for attempt := 1; attempt <= retryMax; attempt++ {
		err := n.http.DoDeadline(req, resp, n.computeDeadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				n.logger.Info("archive_notify",
					zap.String("game_id", rec.GameID),
					zap.Int("ply", len(rec.Moves)),
				)
				return nil
			}
			lastErr = fmt.Errorf("archive endpoint status %d", status)
			if !retryableStatus(status) {
				return lastErr
			}
		} else {
			lastErr = fmt.Errorf("archive request: %w", err)
		}
		if attempt == retryMax {
			break
		}
		if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func (n *Notifier) computeDeadline(ctx context.Context) time.Time {
	dl := time.Now().Add(n.timeout)
	if ctxDL, ok := ctx.Deadline(); ok && ctxDL.Before(dl) {
		return ctxDL
	}
	return dl
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func retryableStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
