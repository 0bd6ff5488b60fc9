package app

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const DefaultRingTimeout = 30 * time.Second

// TimeoutFunc is invoked from the timer goroutine when a ringing window
// elapses. The receiver must re-enter through its own lock and call Expire.
type TimeoutFunc func(key domain.PairKey, id uuid.UUID)

type ringTimer struct {
	id uuid.UUID
	t  *time.Timer
}

// CallManager tracks one-to-one call sessions.
// It is not safe for concurrent use; the orchestrator serializes access.
type CallManager struct {
	timeout   time.Duration
	onTimeout TimeoutFunc
	now       func() time.Time

	byUser map[domain.UserID]*domain.CallSession
	timers map[domain.PairKey]ringTimer
}

func NewCallManager(timeout time.Duration, onTimeout TimeoutFunc) *CallManager {
	if timeout <= 0 {
		timeout = DefaultRingTimeout
	}
	return &CallManager{
		timeout:   timeout,
		onTimeout: onTimeout,
		now:       time.Now,
		byUser:    make(map[domain.UserID]*domain.CallSession),
		timers:    make(map[domain.PairKey]ringTimer),
	}
}

// Get returns the session uid is party to, if any.
func (m *CallManager) Get(uid domain.UserID) (*domain.CallSession, bool) {
	s, ok := m.byUser[uid]
	return s, ok
}

// Initiate starts a ringing session. It returns StateBusy when either
// party already has a session, StateOffline when the callee is not
// online, and StateRinging with the new session otherwise.
func (m *CallManager) Initiate(caller, callee domain.UserID, calleeOnline bool) (*domain.CallSession, domain.CallState) {
	if _, ok := m.byUser[caller]; ok {
		return nil, domain.StateBusy
	}
	if _, ok := m.byUser[callee]; ok {
		return nil, domain.StateBusy
	}
	if !calleeOnline {
		return nil, domain.StateOffline
	}

	s := domain.NewCallSession(caller, callee, m.now())
	m.byUser[caller] = s
	m.byUser[callee] = s
	m.arm(s)
	log.Info().Str("module", "app.calls").Str("call_id", s.ID.String()).Str("caller", string(caller)).Str("callee", string(callee)).Msg("ringing")
	return s, domain.StateRinging
}

// Accept moves a ringing session to active. by must be the recorded
// callee and caller the recorded caller.
func (m *CallManager) Accept(by, caller domain.UserID) (*domain.CallSession, bool) {
	s, ok := m.byUser[by]
	if !ok || s.State != domain.StateRinging || s.Callee != by || s.Caller != caller {
		return nil, false
	}
	m.disarm(s.Key())
	s.State = domain.StateActive
	log.Info().Str("module", "app.calls").Str("call_id", s.ID.String()).Msg("accepted")
	return s, true
}

// Reject removes the session between by and peer in any state.
func (m *CallManager) Reject(by, peer domain.UserID) (*domain.CallSession, bool) {
	return m.closeBetween(by, peer, domain.StateRejected)
}

// End removes the session between by and peer in any state.
func (m *CallManager) End(by, peer domain.UserID) (*domain.CallSession, bool) {
	return m.closeBetween(by, peer, domain.StateEnded)
}

// Drop removes whatever session uid is party to, regardless of state.
// Used when uid disconnects.
func (m *CallManager) Drop(uid domain.UserID) (*domain.CallSession, bool) {
	s, ok := m.byUser[uid]
	if !ok {
		return nil, false
	}
	m.remove(s, domain.StateEnded)
	return s, true
}

// Expire times out the session identified by key and id if it is still
// ringing. Any other situation is a stale fire and a no-op.
func (m *CallManager) Expire(key domain.PairKey, id uuid.UUID) (*domain.CallSession, bool) {
	s, ok := m.byUser[key.A]
	if !ok || s.ID != id || s.State != domain.StateRinging {
		log.Debug().Str("module", "app.calls").Str("call_id", id.String()).Msg("stale ring timer")
		return nil, false
	}
	m.remove(s, domain.StateTimedOut)
	return s, true
}

// Len counts live sessions.
func (m *CallManager) Len() int {
	seen := make(map[uuid.UUID]struct{}, len(m.byUser)/2)
	for _, s := range m.byUser {
		seen[s.ID] = struct{}{}
	}
	return len(seen)
}

// Snapshot lists live sessions ordered by creation time.
func (m *CallManager) Snapshot() []core.CallInfo {
	seen := make(map[uuid.UUID]struct{}, len(m.byUser)/2)
	out := make([]core.CallInfo, 0, len(m.byUser)/2)
	for _, s := range m.byUser {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, core.CallInfo{
			ID:     s.ID.String(),
			Caller: s.Caller,
			Callee: s.Callee,
			State:  s.State,
			Since:  s.CreatedAt.Unix(),
		})
	}
	slices.SortFunc(out, func(a, b core.CallInfo) int {
		if c := cmp.Compare(a.Since, b.Since); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Stop disarms every pending ring timer and ends every live session.
func (m *CallManager) Stop() {
	for _, s := range m.byUser {
		m.remove(s, domain.StateEnded)
	}
	for key := range m.timers {
		m.disarm(key)
	}
}

func (m *CallManager) closeBetween(by, peer domain.UserID, state domain.CallState) (*domain.CallSession, bool) {
	s, ok := m.byUser[by]
	if !ok || by == peer || !s.Between(by, peer) {
		return nil, false
	}
	m.remove(s, state)
	return s, true
}

func (m *CallManager) remove(s *domain.CallSession, state domain.CallState) {
	m.disarm(s.Key())
	s.Close(state, m.now())
	if m.byUser[s.Caller] == s {
		delete(m.byUser, s.Caller)
	}
	if m.byUser[s.Callee] == s {
		delete(m.byUser, s.Callee)
	}
	log.Info().Str("module", "app.calls").Str("call_id", s.ID.String()).Str("state", state.String()).Msg("session closed")
}

func (m *CallManager) arm(s *domain.CallSession) {
	key, id := s.Key(), s.ID
	t := time.AfterFunc(m.timeout, func() {
		if m.onTimeout != nil {
			m.onTimeout(key, id)
		}
	})
	m.timers[key] = ringTimer{id: id, t: t}
}

// disarm cancels the ring timer for key. A fire that already started is
// filtered out by Expire's id and state check.
func (m *CallManager) disarm(key domain.PairKey) {
	if rt, ok := m.timers[key]; ok {
		rt.t.Stop()
		delete(m.timers, key)
	}
}
