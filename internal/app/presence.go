package app

import (
	"github.com/dkeye/Chat/internal/core"
	"github.com/rs/zerolog/log"
)

// Presence emits the full online set to every registered connection.
type Presence struct {
	reg *Registry
}

func NewPresence(reg *Registry) *Presence {
	return &Presence{reg: reg}
}

// Announce sends one snapshot to all live connections, including the
// one whose change triggered it.
func (p *Presence) Announce() core.PublishResult {
	res := core.PublishResult{}
	users := p.reg.Online()
	frame, err := newPresenceFrame(users)
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("encode presence")
		return res
	}
	for _, snap := range p.reg.snapshot() {
		_ = res.Deliver(snap.UID, snap.Conn, frame)
	}
	log.Debug().Str("module", "app.presence").Int("online", len(users)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("presence announced")
	return res
}
