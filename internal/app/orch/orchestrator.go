package orch

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the single owner of presence and call state. Every
// registry mutation, session mutation and broadcast runs under mu, and
// ring timer fires re-enter through the same lock.
type Orchestrator struct {
	mu sync.Mutex

	Registry *app.Registry
	Calls    *app.CallManager
	Presence *app.Presence
	Router   *app.SignalRouter
	Policy   app.Policy
}

type Options struct {
	RingTimeout time.Duration
	Policy      app.Policy
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		Registry: app.NewRegistry(),
		Policy:   opts.Policy,
	}
	if o.Policy == nil {
		o.Policy = app.SimplePolicy{}
	}
	o.Presence = app.NewPresence(o.Registry)
	o.Router = app.NewSignalRouter(o.Registry)
	o.Calls = app.NewCallManager(opts.RingTimeout, o.onRingTimeout)
	return o
}

// Connect registers conn as the live connection of uid and announces
// the new online set.
func (o *Orchestrator) Connect(uid domain.UserID, conn core.SignalConnection) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, replaced := o.Registry.Register(uid, conn); replaced {
		log.Info().Str("module", "orch").Str("uid", string(uid)).Msg("previous connection superseded")
	}
	o.announce()
}

// Disconnect tears down uid's call, if any, then unregisters it and
// announces. A connection that was already superseded by a newer one
// for the same user is ignored. It reports whether uid was unregistered.
func (o *Orchestrator) Disconnect(uid domain.UserID, conn core.SignalConnection) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cur, ok := o.Registry.Resolve(uid); !ok || (conn != nil && cur != conn) {
		log.Debug().Str("module", "orch").Str("uid", string(uid)).Msg("disconnect of non-current connection")
		return false
	}
	if s, ok := o.Calls.Drop(uid); ok {
		peer, _ := s.Peer(uid)
		log.Info().Str("module", "orch").Str("uid", string(uid)).Str("peer", string(peer)).Str("call_id", s.ID.String()).Msg("call dropped on disconnect")
		o.send(peer, domain.EventCallEnded, app.NewNotice(domain.EventCallEnded, uid))
	}
	o.Registry.Unregister(uid, conn)
	o.announce()
	return true
}

// Online returns the currently registered users.
func (o *Orchestrator) Online() []domain.UserID {
	return o.Registry.Online()
}

// ActiveCalls lists live call sessions.
func (o *Orchestrator) ActiveCalls() []core.CallInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Calls.Snapshot()
}

// WhoAmI reports uid's current peer and call state.
func (o *Orchestrator) WhoAmI(uid domain.UserID) (domain.UserID, domain.CallState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.Calls.Get(uid)
	if !ok {
		return "", domain.StateNone
	}
	peer, _ := s.Peer(uid)
	return peer, s.State
}

// Shutdown cancels pending timers, discards every call session and
// closes every live connection.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	o.Calls.Stop()
	conns := o.Registry.Drain()
	o.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	log.Info().Str("module", "orch").Int("closed", len(conns)).Msg("shutdown")
}

// owns reports whether conn is still the registered connection of uid.
// Events read from a superseded connection are dropped. Callers hold mu.
func (o *Orchestrator) owns(uid domain.UserID, conn core.SignalConnection, event string) bool {
	if cur, ok := o.Registry.Resolve(uid); ok && cur == conn {
		return true
	}
	log.Debug().Str("module", "orch").Str("uid", string(uid)).Str("event", event).Msg("event from superseded connection dropped")
	return false
}

func (o *Orchestrator) announce() {
	res := o.Presence.Announce()
	for _, uid := range res.Dropped {
		if conn, ok := o.Registry.Resolve(uid); ok {
			o.onSendFailure(uid, conn, domain.EventOnlineUsers, core.ErrBackpressure)
		}
	}
}

// send delivers f to uid if online. It reports whether the frame was queued.
func (o *Orchestrator) send(uid domain.UserID, event string, f core.Frame) bool {
	conn, ok := o.Registry.Resolve(uid)
	if !ok {
		log.Debug().Str("module", "orch").Str("uid", string(uid)).Str("event", event).Msg("target offline, dropped")
		return false
	}
	if err := conn.TrySend(f); err != nil {
		o.onSendFailure(uid, conn, event, err)
		return false
	}
	return true
}

func (o *Orchestrator) onSendFailure(uid domain.UserID, conn core.SignalConnection, event string, err error) {
	if errors.Is(err, core.ErrConnClosed) {
		return
	}
	switch o.Policy.OnBackPressure(uid, event) {
	case app.KickMember:
		log.Warn().Err(err).Str("module", "orch").Str("uid", string(uid)).Str("event", event).Msg("slow consumer kicked")
		conn.Close()
	case app.DropFrame, app.NoAction:
		log.Warn().Err(err).Str("module", "orch").Str("uid", string(uid)).Str("event", event).Msg("frame dropped")
	}
}
