package signal

import "github.com/dkeye/Chat/internal/domain"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: domain.EventPong,
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleWhoAmI(
	uid domain.UserID,
	conn *WsSignalConn,
) {
	peer, state := ctl.Orch.WhoAmI(uid)
	resp := struct {
		Type   string           `json:"type"`
		UserID domain.UserID    `json:"userId"`
		Peer   domain.UserID    `json:"peer,omitempty"`
		State  domain.CallState `json:"state"`
	}{
		Type:   domain.EventWhoAmI,
		UserID: uid,
		Peer:   peer,
		State:  state,
	}
	ctl.sendJSON(conn, resp)
}
