package orch

import (
	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CallUser handles call:user read from conn, the connection of sender.
func (o *Orchestrator) CallUser(sender domain.UserID, conn core.SignalConnection, from, to domain.UserID) {
	if from != sender || to == "" || to == from {
		log.Warn().Str("module", "orch").Str("uid", string(sender)).Str("from", string(from)).Str("to", string(to)).Msg("call:user rejected as malformed")
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.owns(sender, conn, domain.EventCallUser) {
		return
	}

	_, online := o.Registry.Resolve(to)
	s, state := o.Calls.Initiate(from, to, online)
	switch state {
	case domain.StateBusy:
		o.send(from, domain.EventCallBusy, app.NewNotice(domain.EventCallBusy, to))
	case domain.StateOffline:
		o.send(from, domain.EventCallOffline, app.NewNotice(domain.EventCallOffline, to))
	case domain.StateRinging:
		o.send(to, domain.EventCallIncoming, app.NewNotice(domain.EventCallIncoming, from))
		log.Info().Str("module", "orch").Str("call_id", s.ID.String()).Str("from", string(from)).Str("to", string(to)).Msg("call initiated")
	}
}

// Accept handles call:accept; by is the callee, to the caller.
func (o *Orchestrator) Accept(by domain.UserID, conn core.SignalConnection, to domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.owns(by, conn, domain.EventCallAccept) {
		return
	}

	if _, ok := o.Calls.Accept(by, to); !ok {
		log.Debug().Str("module", "orch").Str("uid", string(by)).Str("to", string(to)).Msg("accept without ringing session")
		return
	}
	o.send(to, domain.EventCallAccepted, app.NewNotice(domain.EventCallAccepted, by))
}

// Reject handles call:reject.
func (o *Orchestrator) Reject(by domain.UserID, conn core.SignalConnection, to domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.owns(by, conn, domain.EventCallReject) {
		return
	}

	if _, ok := o.Calls.Reject(by, to); !ok {
		log.Debug().Str("module", "orch").Str("uid", string(by)).Str("to", string(to)).Msg("reject without session")
		return
	}
	o.send(to, domain.EventCallRejected, app.NewNotice(domain.EventCallRejected, by))
}

// End handles call:end from either party.
func (o *Orchestrator) End(by domain.UserID, conn core.SignalConnection, to domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.owns(by, conn, domain.EventCallEnd) {
		return
	}

	if _, ok := o.Calls.End(by, to); !ok {
		log.Debug().Str("module", "orch").Str("uid", string(by)).Str("to", string(to)).Msg("end without session")
		return
	}
	o.send(to, domain.EventCallEnded, app.NewNotice(domain.EventCallEnded, by))
}

func (o *Orchestrator) onRingTimeout(key domain.PairKey, id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.Calls.Expire(key, id)
	if !ok {
		return
	}
	log.Info().Str("module", "orch").Str("call_id", id.String()).Msg("ring timeout")
	o.send(s.Caller, domain.EventCallEnded, app.NewNotice(domain.EventCallEnded, s.Callee))
	o.send(s.Callee, domain.EventCallEnded, app.NewNotice(domain.EventCallEnded, s.Caller))
}
