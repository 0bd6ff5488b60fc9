package orch

import (
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
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

// callEvents returns the event types received, presence excluded.
func (c *fakeConn) callEvents() []string {
	var out []string
	for _, ev := range c.events() {
		var typ string
		_ = json.Unmarshal(ev["type"], &typ)
		if typ != domain.EventOnlineUsers {
			out = append(out, typ)
		}
	}
	return out
}

func (c *fakeConn) lastOf(event string) map[string]json.RawMessage {
	evs := c.events()
	for i := len(evs) - 1; i >= 0; i-- {
		var typ string
		_ = json.Unmarshal(evs[i]["type"], &typ)
		if typ == event {
			return evs[i]
		}
	}
	return nil
}

func (c *fakeConn) onlineUsers(t *testing.T) []domain.UserID {
	t.Helper()
	ev := c.lastOf(domain.EventOnlineUsers)
	require.NotNil(t, ev, "no presence snapshot received")
	var users []domain.UserID
	require.NoError(t, json.Unmarshal(ev["users"], &users))
	return users
}

func from(t *testing.T, ev map[string]json.RawMessage) domain.UserID {
	t.Helper()
	require.NotNil(t, ev)
	var uid domain.UserID
	require.NoError(t, json.Unmarshal(ev["from"], &uid))
	return uid
}

func newOrch(ringTimeout time.Duration) *Orchestrator {
	return New(Options{RingTimeout: ringTimeout})
}

func connect(o *Orchestrator, uid domain.UserID) *fakeConn {
	c := &fakeConn{}
	o.Connect(uid, c)
	return c
}

func TestPresenceTracksRegistry(t *testing.T) {
	o := newOrch(time.Hour)
	live := map[domain.UserID]*fakeConn{}

	check := func() {
		want := make([]domain.UserID, 0, len(live))
		for uid := range live {
			want = append(want, uid)
		}
		slices.Sort(want)
		for uid, c := range live {
			assert.Equal(t, want, c.onlineUsers(t), "snapshot seen by %s", uid)
		}
	}

	steps := []struct {
		uid     domain.UserID
		connect bool
	}{
		{"a", true}, {"b", true}, {"c", true}, {"b", false},
		{"a", true}, {"d", true}, {"c", false}, {"ghost", false},
	}
	for _, st := range steps {
		if st.connect {
			live[st.uid] = connect(o, st.uid)
		} else {
			o.Disconnect(st.uid, live[st.uid])
			delete(live, st.uid)
		}
		check()
	}
}

func TestPresenceOnePerMutation(t *testing.T) {
	o := newOrch(time.Hour)
	a := connect(o, "a")
	connect(o, "b")
	o.Disconnect("b", nil)

	assert.Len(t, a.events(), 3)
}

func TestCallUserOffline(t *testing.T) {
	o := newOrch(time.Hour)
	a := connect(o, "a")

	o.CallUser("a", a, "a", "b")

	assert.Equal(t, []string{domain.EventCallOffline}, a.callEvents())
	assert.Empty(t, o.ActiveCalls())
}

func TestCallUserBusy(t *testing.T) {
	o := newOrch(time.Hour)
	a, b, c := connect(o, "a"), connect(o, "b"), connect(o, "c")
	d := connect(o, "d")

	o.CallUser("a", a, "a", "b")
	require.Len(t, o.ActiveCalls(), 1)
	before := o.ActiveCalls()[0]

	o.CallUser("c", c, "c", "b")
	o.CallUser("d", d, "d", "a")
	o.CallUser("b", b, "b", "c")

	assert.Equal(t, []string{domain.EventCallBusy}, c.callEvents())
	assert.Equal(t, []string{domain.EventCallBusy}, d.callEvents())
	assert.Equal(t, []string{domain.EventCallIncoming, domain.EventCallBusy}, b.callEvents())
	assert.Empty(t, a.callEvents())
	assert.Equal(t, []core.CallInfo{before}, o.ActiveCalls())
}

func TestAcceptFlow(t *testing.T) {
	o := newOrch(50 * time.Millisecond)
	a, b := connect(o, "a"), connect(o, "b")

	o.CallUser("a", a, "a", "b")
	require.Equal(t, []string{domain.EventCallIncoming}, b.callEvents())
	assert.Equal(t, domain.UserID("a"), from(t, b.lastOf(domain.EventCallIncoming)))

	peer, state := o.WhoAmI("b")
	assert.Equal(t, domain.UserID("a"), peer)
	assert.Equal(t, domain.StateRinging, state)

	o.Accept("b", b, "a")
	assert.Equal(t, []string{domain.EventCallAccepted}, a.callEvents())
	_, state = o.WhoAmI("a")
	assert.Equal(t, domain.StateActive, state)

	// The ring timer must not end an accepted call.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{domain.EventCallAccepted}, a.callEvents())
	assert.Equal(t, []string{domain.EventCallIncoming}, b.callEvents())
	assert.Len(t, o.ActiveCalls(), 1)
}

func TestRingTimeout(t *testing.T) {
	o := newOrch(30 * time.Millisecond)
	a, b := connect(o, "a"), connect(o, "b")

	o.CallUser("a", a, "a", "b")

	require.Eventually(t, func() bool {
		return slices.Contains(a.callEvents(), domain.EventCallEnded) &&
			slices.Contains(b.callEvents(), domain.EventCallEnded)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(t, o.ActiveCalls())
	_, state := o.WhoAmI("a")
	assert.Equal(t, domain.StateNone, state)
}

func TestThirdPartyCannotAccept(t *testing.T) {
	o := newOrch(time.Hour)
	a, _, c := connect(o, "a"), connect(o, "b"), connect(o, "c")

	o.CallUser("a", a, "a", "b")
	o.Accept("c", c, "a")

	assert.Empty(t, a.callEvents())
	assert.Empty(t, c.callEvents())
	assert.Equal(t, domain.StateRinging, o.ActiveCalls()[0].State)
}

func TestRejectThenCallAgain(t *testing.T) {
	o := newOrch(time.Hour)
	a, b := connect(o, "a"), connect(o, "b")

	o.CallUser("a", a, "a", "b")
	o.Reject("b", b, "a")

	assert.Equal(t, []string{domain.EventCallRejected}, a.callEvents())
	assert.Empty(t, o.ActiveCalls())

	o.CallUser("a", a, "a", "b")
	assert.Equal(t, []string{domain.EventCallRejected}, a.callEvents(), "no busy on a fresh call")
	assert.Equal(t, []string{domain.EventCallIncoming, domain.EventCallIncoming}, b.callEvents())
}

func TestEndNotifiesOtherParty(t *testing.T) {
	o := newOrch(time.Hour)
	a, b := connect(o, "a"), connect(o, "b")

	o.CallUser("a", a, "a", "b")
	o.Accept("b", b, "a")
	o.End("b", b, "a")

	assert.Equal(t, []string{domain.EventCallAccepted, domain.EventCallEnded}, a.callEvents())
	assert.Equal(t, []string{domain.EventCallIncoming}, b.callEvents())
	assert.Empty(t, o.ActiveCalls())

	o.End("b", b, "a")
	assert.Len(t, a.callEvents(), 2, "end without session is dropped")
}

func TestDisconnectEndsCallInAnyState(t *testing.T) {
	for _, accept := range []bool{false, true} {
		o := newOrch(time.Hour)
		a, b := connect(o, "a"), connect(o, "b")

		o.CallUser("a", a, "a", "b")
		if accept {
			o.Accept("b", b, "a")
		}
		o.Disconnect("b", b)

		ev := a.lastOf(domain.EventCallEnded)
		require.NotNil(t, ev, "accepted=%v", accept)
		assert.Equal(t, domain.UserID("b"), from(t, ev))
		assert.Empty(t, o.ActiveCalls())
		assert.Equal(t, []domain.UserID{"a"}, a.onlineUsers(t))

		o.CallUser("a", a, "a", "b")
		assert.Equal(t, domain.EventCallOffline, a.callEvents()[len(a.callEvents())-1])
	}
}

func TestSupersededConnectionDisconnect(t *testing.T) {
	o := newOrch(time.Hour)
	a := connect(o, "a")
	oldB := connect(o, "b")
	newB := connect(o, "b")

	o.CallUser("a", a, "a", "b")
	require.Equal(t, []string{domain.EventCallIncoming}, newB.callEvents())
	assert.Empty(t, oldB.callEvents())

	assert.False(t, o.Disconnect("b", oldB))
	assert.Len(t, o.ActiveCalls(), 1, "stale disconnect keeps the call")
	assert.Equal(t, []domain.UserID{"a", "b"}, o.Online())
	assert.Empty(t, a.callEvents())
}

func TestSupersededConnectionIsInert(t *testing.T) {
	o := newOrch(time.Hour)
	a := connect(o, "a")
	oldB := connect(o, "b")
	newB := connect(o, "b")
	c := connect(o, "c")

	o.CallUser("a", a, "a", "b")
	require.Equal(t, []string{domain.EventCallIncoming}, newB.callEvents())

	o.Accept("b", oldB, "a")
	o.Reject("b", oldB, "a")
	o.End("b", oldB, "a")
	o.CallUser("b", oldB, "b", "c")
	o.Relay("b", oldB, domain.EventAnswer, []byte(`{"type":"webrtc:answer","to":"a","answer":{}}`))

	calls := o.ActiveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.StateRinging, calls[0].State)
	assert.Empty(t, a.callEvents())
	assert.Empty(t, c.callEvents())
	assert.Empty(t, oldB.callEvents())

	o.Accept("b", newB, "a")
	assert.Equal(t, []string{domain.EventCallAccepted}, a.callEvents())
	assert.Equal(t, domain.StateActive, o.ActiveCalls()[0].State)
}

func TestDisconnectReportsUnregister(t *testing.T) {
	o := newOrch(time.Hour)
	b := connect(o, "b")

	assert.True(t, o.Disconnect("b", b))
	assert.False(t, o.Disconnect("b", b), "already gone")
	assert.False(t, o.Disconnect("ghost", nil))
}

func TestConcurrentCallersOneWins(t *testing.T) {
	o := newOrch(time.Hour)
	a, b, c := connect(o, "a"), connect(o, "b"), connect(o, "c")

	conns := map[domain.UserID]*fakeConn{"a": a, "c": c}
	var wg sync.WaitGroup
	for uid, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.CallUser(uid, conn, uid, "b")
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{domain.EventCallIncoming}, b.callEvents())
	busy := 0
	for _, conn := range []*fakeConn{a, c} {
		if slices.Equal(conn.callEvents(), []string{domain.EventCallBusy}) {
			busy++
		} else {
			assert.Empty(t, conn.callEvents())
		}
	}
	assert.Equal(t, 1, busy)

	calls := o.ActiveCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, from(t, b.lastOf(domain.EventCallIncoming)), calls[0].Caller)
}

func TestRelayCandidate(t *testing.T) {
	o := newOrch(time.Hour)
	a := connect(o, "a")
	b := connect(o, "b")

	o.Relay("a", a, domain.EventCandidate, []byte(`{"type":"webrtc:ice-candidate","to":"b","candidate":{"candidate":"X"}}`))

	ev := b.lastOf(domain.EventCandidate)
	require.NotNil(t, ev)
	assert.Equal(t, `{"candidate":"X"}`, string(ev["candidate"]))
	assert.Equal(t, domain.UserID("a"), from(t, ev))

	// Offline targets and bad frames are dropped without a reply.
	o.Relay("a", a, domain.EventOffer, []byte(`{"type":"webrtc:offer","to":"ghost","offer":{}}`))
	o.Relay("a", a, domain.EventOffer, []byte(`{"type":"webrtc:offer"}`))
	assert.Len(t, b.callEvents(), 1)
}

func TestMalformedCallUserDropped(t *testing.T) {
	o := newOrch(time.Hour)
	a := connect(o, "a")
	connect(o, "b")

	o.CallUser("a", a, "", "b")
	o.CallUser("a", a, "b", "a")
	o.CallUser("a", a, "a", "a")
	o.CallUser("a", a, "a", "")

	assert.Empty(t, a.callEvents())
	assert.Empty(t, o.ActiveCalls())
}

func TestSlowConsumerKicked(t *testing.T) {
	o := newOrch(time.Hour)
	connect(o, "a")
	slow := &fakeConn{full: true}
	o.Connect("slow", slow)

	assert.True(t, slow.isClosed())
}

func TestLenientPolicyKeepsConnection(t *testing.T) {
	o := New(Options{RingTimeout: time.Hour, Policy: app.LenientPolicy{}})
	slow := &fakeConn{full: true}
	o.Connect("slow", slow)

	assert.False(t, slow.isClosed())
}

func TestShutdownClosesConnections(t *testing.T) {
	o := newOrch(time.Hour)
	a, b := connect(o, "a"), connect(o, "b")
	o.CallUser("a", a, "a", "b")

	o.Shutdown()

	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	assert.Empty(t, o.Online())
	assert.Empty(t, o.ActiveCalls())

	// Pumps report their close after the drain; nothing is left to undo.
	assert.False(t, o.Disconnect("a", a))
	assert.Empty(t, o.ActiveCalls())
}
