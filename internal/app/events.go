package app

import (
	"encoding/json"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

// notice is the shape of every server-originated call event.
type notice struct {
	Type string        `json:"type"`
	From domain.UserID `json:"from,omitempty"`
}

type presenceEvent struct {
	Type  string          `json:"type"`
	Users []domain.UserID `json:"users"`
}

// NewNotice encodes a call event whose only payload is the peer id.
func NewNotice(event string, from domain.UserID) core.Frame {
	b, _ := json.Marshal(notice{Type: event, From: from})
	return b
}

func newPresenceFrame(users []domain.UserID) (core.Frame, error) {
	return json.Marshal(presenceEvent{Type: domain.EventOnlineUsers, Users: users})
}
