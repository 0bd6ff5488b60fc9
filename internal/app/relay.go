package app

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrMalformed     = errors.New("malformed signaling payload")
	ErrTargetOffline = errors.New("target offline")
)

// SignalRouter forwards signaling payloads between two online users.
// It keeps no state between calls and never inspects the payload.
type SignalRouter struct {
	reg *Registry
}

func NewSignalRouter(reg *Registry) *SignalRouter {
	return &SignalRouter{reg: reg}
}

// Relay forwards data from sender to the user named in its "to" field.
// The "to" field is replaced by "from"; every other field is passed
// through byte for byte.
func (r *SignalRouter) Relay(from domain.UserID, data []byte) (domain.UserID, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", errors.Join(ErrMalformed, err)
	}
	var to string
	if raw, ok := fields["to"]; !ok || json.Unmarshal(raw, &to) != nil || to == "" {
		return "", ErrMalformed
	}
	target := domain.UserID(to)

	conn, ok := r.reg.Resolve(target)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("from", string(from)).Str("to", to).Msg("target offline, dropped")
		return target, ErrTargetOffline
	}

	delete(fields, "to")
	fields["from"], _ = json.Marshal(from)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return target, err
	}
	return target, conn.TrySend(core.Frame(bytes.TrimRight(buf.Bytes(), "\n")))
}
