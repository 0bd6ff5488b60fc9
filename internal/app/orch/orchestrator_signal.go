package orch

import (
	"errors"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// Relay forwards a webrtc:* frame read from conn to its addressee.
// Offline targets and malformed frames are dropped silently.
func (o *Orchestrator) Relay(sender domain.UserID, conn core.SignalConnection, event string, data []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.owns(sender, conn, event) {
		return
	}

	to, err := o.Router.Relay(sender, data)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrMalformed):
		log.Warn().Err(err).Str("module", "orch").Str("uid", string(sender)).Str("event", event).Msg("relay dropped")
	case errors.Is(err, app.ErrTargetOffline):
	default:
		if conn, ok := o.Registry.Resolve(to); ok {
			o.onSendFailure(to, conn, event, err)
		}
	}
}
