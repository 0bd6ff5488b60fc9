package signal

import (
	"encoding/json"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type callPayload struct {
	Type string        `json:"type"`
	From domain.UserID `json:"from"`
	To   domain.UserID `json:"to"`
}

// decodeCall returns false for undecodable payloads or a missing "to".
func decodeCall(uid domain.UserID, data []byte) (callPayload, bool) {
	var p callPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("uid", string(uid)).Msg("bad call payload")
		return p, false
	}
	if p.To == "" {
		log.Warn().Str("module", "signal").Str("uid", string(uid)).Str("type", p.Type).Msg("call payload without to")
		return p, false
	}
	return p, true
}

func (ctl *SignalWSController) handleCallUser(uid domain.UserID, c *WsSignalConn, data []byte) {
	p, ok := decodeCall(uid, data)
	if !ok {
		return
	}
	ctl.Orch.CallUser(uid, c, p.From, p.To)
}

func (ctl *SignalWSController) handleAccept(uid domain.UserID, c *WsSignalConn, data []byte) {
	if p, ok := decodeCall(uid, data); ok {
		ctl.Orch.Accept(uid, c, p.To)
	}
}

func (ctl *SignalWSController) handleReject(uid domain.UserID, c *WsSignalConn, data []byte) {
	if p, ok := decodeCall(uid, data); ok {
		ctl.Orch.Reject(uid, c, p.To)
	}
}

func (ctl *SignalWSController) handleEnd(uid domain.UserID, c *WsSignalConn, data []byte) {
	if p, ok := decodeCall(uid, data); ok {
		ctl.Orch.End(uid, c, p.To)
	}
}
