package domain

import (
	"time"

	"github.com/google/uuid"
)

type CallState int

const (
	StateNone CallState = iota
	StateRinging
	StateActive
	StateEnded
	StateRejected
	StateTimedOut
	StateOffline
	StateBusy
)

var stateNames = [...]string{
	StateNone:     "none",
	StateRinging:  "ringing",
	StateActive:   "active",
	StateEnded:    "ended",
	StateRejected: "rejected",
	StateTimedOut: "timed_out",
	StateOffline:  "offline",
	StateBusy:     "busy",
}

func (s CallState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the state ends a session.
func (s CallState) Terminal() bool { return s >= StateEnded }

func (s CallState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// CallSession is the negotiation state between exactly two users.
// No locking here; the owner serializes access.
type CallSession struct {
	ID        uuid.UUID `json:"id"`
	Caller    UserID    `json:"caller"`
	Callee    UserID    `json:"callee"`
	State     CallState `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	ClosedAt  time.Time `json:"closed_at,omitzero"`
}

func NewCallSession(caller, callee UserID, now time.Time) *CallSession {
	return &CallSession{
		ID:        uuid.New(),
		Caller:    caller,
		Callee:    callee,
		State:     StateRinging,
		CreatedAt: now,
	}
}

func (s *CallSession) Key() PairKey { return NewPairKey(s.Caller, s.Callee) }

// Peer returns the other party of the session.
func (s *CallSession) Peer(of UserID) (UserID, bool) {
	switch of {
	case s.Caller:
		return s.Callee, true
	case s.Callee:
		return s.Caller, true
	}
	return "", false
}

// Between reports whether x and y are exactly the two parties.
func (s *CallSession) Between(x, y UserID) bool {
	return s.Key() == NewPairKey(x, y)
}

// Close moves the session into a terminal state.
func (s *CallSession) Close(state CallState, now time.Time) {
	s.State = state
	s.ClosedAt = now
}
