package domain

// Event names exchanged over the real-time channel.
const (
	EventOnlineUsers = "getOnlineUsers"

	EventCallUser     = "call:user"
	EventCallIncoming = "call:incoming"
	EventCallAccept   = "call:accept"
	EventCallAccepted = "call:accepted"
	EventCallReject   = "call:reject"
	EventCallRejected = "call:rejected"
	EventCallBusy     = "call:busy"
	EventCallOffline  = "call:user-offline"
	EventCallEnd      = "call:end"
	EventCallEnded    = "call:ended"

	EventOffer     = "webrtc:offer"
	EventAnswer    = "webrtc:answer"
	EventCandidate = "webrtc:ice-candidate"

	EventPing   = "ping"
	EventPong   = "pong"
	EventWhoAmI = "whoami"
)

// IsRelay reports whether the event is forwarded verbatim between peers.
func IsRelay(event string) bool {
	switch event {
	case EventOffer, EventAnswer, EventCandidate:
		return true
	}
	return false
}
