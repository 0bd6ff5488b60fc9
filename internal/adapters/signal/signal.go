package signal

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RateLimiter

	upgrader   websocket.Upgrader
	readLimit  int64
	pingPeriod time.Duration
	pongWait   time.Duration
	sendBuffer int
}

func NewSignalWSController(o *orch.Orchestrator, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		Limiter: NewRateLimiter(cfg.RateLimit, cfg.RateInterval),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
		readLimit:  cfg.ReadLimit,
		pingPeriod: cfg.PingPeriod,
		pongWait:   cfg.PongWait,
		sendBuffer: cfg.SendBuffer,
	}
}

// checkOrigin allows every origin when the list is empty.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// WsSignalConn implements core.SignalConnection over a websocket with a
// bounded outbound queue drained by writePump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSignal upgrades the request and serves uid until the socket
// closes. It blocks for the lifetime of the connection.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, w http.ResponseWriter, r *http.Request, uid domain.UserID) {
	l := log.With().Str("module", "signal").Str("uid", string(uid)).Logger()

	// Cookies set by middleware must travel with the upgrade response.
	var hdr http.Header
	if cookies := w.Header().Values("Set-Cookie"); len(cookies) > 0 {
		hdr = http.Header{"Set-Cookie": cookies}
	}
	ws, err := ctl.upgrader.Upgrade(w, r, hdr)
	if err != nil {
		l.Error().Err(err).Msg("ws upgrade")
		return
	}
	l.Info().Msg("new WS connection")

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.sendBuffer),
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctl.Orch.Connect(uid, conn)

	var wg conc.WaitGroup
	wg.Go(func() { ctl.writePump(ctx, uid, conn) })
	wg.Go(func() {
		defer cancel()
		ctl.readPump(ctx, uid, conn)
	})
	wg.Wait()

	ctl.release(uid, conn)
	l.Info().Msg("WS connection closed")
}

// release unregisters conn. Rate limit history belongs to the user, so it
// is only dropped when conn was still the user's live connection.
func (ctl *SignalWSController) release(uid domain.UserID, conn core.SignalConnection) {
	if ctl.Orch.Disconnect(uid, conn) {
		ctl.Limiter.Forget(uid)
	}
}
