package app

import "github.com/dkeye/Chat/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose outbound queue is full.
type Policy interface {
	OnBackPressure(uid domain.UserID, event string) BackpressureAction
}

// SimplePolicy kicks slow consumers. A kicked connection closes and goes
// through the normal disconnect path.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.UserID, string) BackpressureAction {
	return KickMember
}

// LenientPolicy only kicks when call control is lost; presence snapshots
// and relayed signaling are dropped since a later frame supersedes them.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(_ domain.UserID, event string) BackpressureAction {
	if event == domain.EventOnlineUsers || domain.IsRelay(event) {
		return DropFrame
	}
	return KickMember
}
