package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/thudgame/relay/internal/dispatch"
	"github.com/thudgame/relay/pkg/thudwire"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	pingTimeout  = 3 * time.Second
)

// Server accepts websocket clients and pumps their events through the
// dispatcher. Each inbound event is handled on its own goroutine so a
// slow oracle round trip never stalls the read loop, and handlers run
// under a background-derived context so a disconnect mid-validation
// cannot abort a commit already in flight.
type Server struct {
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
}

func NewServer(d *dispatch.Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{dispatcher: d, logger: logger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  []string{"*"},
	})
	if err != nil {
		s.logger.Warn("ws_accept_error",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("client_connect", zap.String("remote", r.RemoteAddr))
	s.serve(r.Context(), conn, r.RemoteAddr)
}

func (s *Server) serve(connCtx context.Context, conn *websocket.Conn, remote string) {
	ctx, cancel := context.WithCancel(connCtx)
	defer cancel()
	defer conn.Close(websocket.StatusGoingAway, "server closing")

	var writeMu sync.Mutex
	var handlers sync.WaitGroup
	emit := func(env thudwire.Envelope) {
		wctx, wcancel := context.WithTimeout(context.Background(), writeTimeout)
		defer wcancel()
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := wsjson.Write(wctx, conn, env); err != nil {
			s.logger.Debug("ws_write_error",
				zap.String("remote", remote),
				zap.Error(err),
			)
		}
	}

	go s.pingLoop(ctx, cancel, conn, remote)

	for {
		var env thudwire.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			s.logger.Info("client_disconnect", zap.String("remote", remote))
			cancel()
			handlers.Wait()
			conn.Close(websocket.StatusNormalClosure, "bye")
			return
		}

		handlers.Add(1)
		go func(env thudwire.Envelope) {
			defer handlers.Done()
			s.dispatcher.Handle(context.Background(), env, emit)
		}(env)
	}
}

func (s *Server) pingLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, remote string) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	consecutivePingFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				consecutivePingFailures++
				if consecutivePingFailures >= 2 {
					s.logger.Warn("client_ping_failure", zap.String("remote", remote))
					cancel()
					return
				}
				continue
			}
			consecutivePingFailures = 0
		}
	}
}
