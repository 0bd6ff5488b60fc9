package app

import (
	"slices"
	"sync"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry maps a user identity to its single live connection.
// A later Register for the same user replaces the earlier entry.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]core.SignalConnection
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.UserID]core.SignalConnection),
	}
}

// Register inserts or replaces the connection for uid and returns the
// handle it replaced, if any. The replaced handle is not notified.
func (r *Registry) Register(uid domain.UserID, conn core.SignalConnection) (core.SignalConnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, replaced := r.conns[uid]
	r.conns[uid] = conn
	log.Info().Str("module", "app.registry").Str("uid", string(uid)).Bool("replaced", replaced).Msg("registered")
	return prev, replaced
}

// Unregister removes uid. When conn is non-nil the entry is only removed
// if it is still owned by conn. Absent entries are a no-op.
func (r *Registry) Unregister(uid domain.UserID, conn core.SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[uid]
	if !ok {
		return false
	}
	if conn != nil && cur != conn {
		log.Debug().Str("module", "app.registry").Str("uid", string(uid)).Msg("stale unregister ignored")
		return false
	}
	delete(r.conns, uid)
	log.Info().Str("module", "app.registry").Str("uid", string(uid)).Msg("unregistered")
	return true
}

// Resolve is a pure lookup; false means the user is offline.
func (r *Registry) Resolve(uid domain.UserID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[uid]
	return conn, ok
}

// Online returns the registered ids in sorted order.
func (r *Registry) Online() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserID, 0, len(r.conns))
	for uid := range r.conns {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out
}

type regSnap struct {
	UID  domain.UserID
	Conn core.SignalConnection
}

func (r *Registry) snapshot() []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.conns))
	for uid, c := range r.conns {
		out = append(out, regSnap{UID: uid, Conn: c})
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Drain removes every entry and returns the connections it held.
func (r *Registry) Drain() []core.SignalConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.SignalConnection, 0, len(r.conns))
	for uid, c := range r.conns {
		out = append(out, c)
		delete(r.conns, uid)
	}
	return out
}
