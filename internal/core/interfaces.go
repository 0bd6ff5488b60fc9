package core

import "github.com/dkeye/Chat/internal/domain"

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []domain.UserID
}

func (r *PublishResult) add(uid domain.UserID, err error) {
	if err != nil {
		r.Dropped = append(r.Dropped, uid)
		return
	}
	r.SentTo++
}

// Deliver records the outcome of one send to uid.
func (r *PublishResult) Deliver(uid domain.UserID, conn SignalConnection, f Frame) error {
	err := conn.TrySend(f)
	r.add(uid, err)
	return err
}

// CallInfo is a read-only view of a call session for APIs.
type CallInfo struct {
	ID     string           `json:"id"`
	Caller domain.UserID    `json:"caller"`
	Callee domain.UserID    `json:"callee"`
	State  domain.CallState `json:"state"`
	Since  int64            `json:"since"`
}
