// Package domain contains entity without transport, just meta-data and state
package domain

import (
	"errors"
	"strings"
)

const MaxUserIDLen = 64

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

// UserID is the stable identity of a logical user, supplied by the
// authentication layer when a connection is opened.
type UserID string

// ParseUserID trims and validates a raw identity.
func ParseUserID(raw string) (UserID, error) {
	s := strings.TrimSpace(raw)
	if len(s) == 0 {
		return "", ErrUserIDEmpty
	}
	if len(s) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(s), nil
}

func (u UserID) String() string { return string(u) }

// PairKey identifies the two parties of a call regardless of direction.
type PairKey struct {
	A UserID
	B UserID
}

// NewPairKey orders the ids so that NewPairKey(x, y) == NewPairKey(y, x).
func NewPairKey(x, y UserID) PairKey {
	if y < x {
		x, y = y, x
	}
	return PairKey{A: x, B: y}
}

func (k PairKey) String() string { return string(k.A) + "|" + string(k.B) }
