package app

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/Chat/internal/core"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) events() []map[string]json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]json.RawMessage, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}
