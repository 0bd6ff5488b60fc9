package signal

import "github.com/dkeye/Chat/internal/domain"

// handleRelay passes offer, answer and candidate frames through
// untouched apart from the addressing fields.
func (ctl *SignalWSController) handleRelay(
	uid domain.UserID,
	c *WsSignalConn,
	event string,
	data []byte,
) {
	ctl.Orch.Relay(uid, c, event, data)
}
