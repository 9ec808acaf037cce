// ABOUTME: Tests for the transport session state machine
// ABOUTME: Connect, send/receive, probing and bounded reconnection on a fake clock
package transport

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/audiorouter/voicelink/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func testHeader() protocol.Header {
	return protocol.Header{Account: "acct", Room: "room", Participant: "me", Rate: 24000}
}

func newTestSession(t *testing.T, dialer Dialer, clock Clock, mutate func(*Config)) *Session {
	t.Helper()
	cfg := Config{
		Dialer: dialer,
		Header: testHeader(),
		Clock:  clock,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewSession(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func nextEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case e, ok := <-s.Events():
		require.True(t, ok, "event stream closed")
		return e
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func openSession(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Open())
	require.IsType(t, Connected{}, nextEvent(t, s))
	require.Equal(t, Open, s.State())
}

func TestNewSessionValidates(t *testing.T) {
	dialer := &fakeDialer{}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no dialer", func(c *Config) { c.Dialer = nil }},
		{"no account", func(c *Config) { c.Header.Account = "" }},
		{"no room", func(c *Config) { c.Header.Room = "" }},
		{"no participant", func(c *Config) { c.Header.Participant = "" }},
		{"no rate", func(c *Config) { c.Header.Rate = 0 }},
		{"oversized header", func(c *Config) { c.Header.Account = strings.Repeat("a", protocol.MaxHeaderSize) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Dialer: dialer, Header: testHeader()}
			tt.mutate(&cfg)
			s, err := NewSession(cfg)
			assert.Nil(t, s)
			assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
		})
	}
}

func TestOpenEmitsConnected(t *testing.T) {
	ch := newFakeChannel()
	s := newTestSession(t, &fakeDialer{script: []*fakeChannel{ch}}, newFakeClock(), nil)

	assert.Equal(t, Disconnected, s.State())
	openSession(t, s)
	assert.NoError(t, s.Err())
}

func TestSendIsNoopUnlessOpen(t *testing.T) {
	ch := newFakeChannel()
	s := newTestSession(t, &fakeDialer{script: []*fakeChannel{ch}}, newFakeClock(), nil)

	require.NoError(t, s.Send([]int16{1, 2, 3}))
	assert.Empty(t, ch.sentOfKind(Binary))

	openSession(t, s)
	require.NoError(t, s.Send([]int16{1, 2, 3}))

	sent := ch.sentOfKind(Binary)
	require.Len(t, sent, 1)
	pkt, err := protocol.Decode(sent[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "acct", pkt.Header.Account)
	assert.Equal(t, "me", pkt.Header.Participant)
	assert.Equal(t, 3, pkt.Header.Count)
	assert.Equal(t, 24000, pkt.Header.Rate)
	assert.Equal(t, []int16{1, 2, 3}, pkt.Samples)

	c := s.SnapshotCounters()
	assert.Equal(t, int64(1), c.PacketsTx)
	assert.Equal(t, int64(3), c.SamplesTx)
	assert.Equal(t, Counters{}, s.Counters())
}

func TestReceiveDropsMalformedAndKeepsOrder(t *testing.T) {
	ch := newFakeChannel()
	s := newTestSession(t, &fakeDialer{script: []*fakeChannel{ch}}, newFakeClock(), nil)
	openSession(t, s)

	first, err := protocol.Encode(testHeader(), []int16{1})
	require.NoError(t, err)
	second, err := protocol.Encode(testHeader(), []int16{2, 2})
	require.NoError(t, err)
	mismatched := append([]byte(nil), second[:len(second)-2]...)

	ch.inject(Binary, first)
	ch.inject(Binary, []byte("garbage without newline"))
	ch.inject(Binary, mismatched)
	ch.inject(Binary, second)

	for _, expected := range [][]int16{{1}, {2, 2}} {
		select {
		case pkt := <-s.Packets():
			assert.Equal(t, expected, pkt.Samples)
		case <-time.After(waitFor):
			t.Fatal("timed out waiting for packet")
		}
	}

	c := s.Counters()
	assert.Equal(t, int64(2), c.Dropped)
	assert.Equal(t, int64(2), c.PacketsRx)
	assert.Equal(t, int64(3), c.SamplesRx)
	assert.Equal(t, Open, s.State())
}

func TestProbeMeasuresLatency(t *testing.T) {
	ch := newFakeChannel()
	clock := newFakeClock()
	s := newTestSession(t, &fakeDialer{script: []*fakeChannel{ch}}, clock, nil)
	openSession(t, s)

	clock.Advance(DefaultProbeInterval)
	require.Eventually(t, func() bool { return len(ch.sentOfKind(Text)) == 1 }, waitFor, time.Millisecond)

	msg, err := protocol.ParseMessage(ch.sentOfKind(Text)[0].Data)
	require.NoError(t, err)
	require.Equal(t, protocol.MessageTypePing, msg.Type)
	probe, err := msg.ParseProbe()
	require.NoError(t, err)
	assert.Equal(t, clock.Now().UnixMilli(), probe.TimeStart)

	clock.Advance(40 * time.Millisecond)
	pong, err := protocol.NewProbeMessage(protocol.MessageTypePong, probe.TimeStart)
	require.NoError(t, err)
	ch.inject(Text, pong)

	assert.Equal(t, Latency{RTT: 40 * time.Millisecond}, nextEvent(t, s))

	// Probing keeps going while open
	clock.Advance(DefaultProbeInterval)
	require.Eventually(t, func() bool { return len(ch.sentOfKind(Text)) == 2 }, waitFor, time.Millisecond)
}

func TestAnswersPeerPing(t *testing.T) {
	ch := newFakeChannel()
	s := newTestSession(t, &fakeDialer{script: []*fakeChannel{ch}}, newFakeClock(), nil)
	openSession(t, s)

	ping, err := protocol.NewProbeMessage(protocol.MessageTypePing, 123)
	require.NoError(t, err)
	ch.inject(Text, ping)
	ch.inject(Text, []byte("{not json"))

	require.Eventually(t, func() bool { return len(ch.sentOfKind(Text)) == 1 }, waitFor, time.Millisecond)
	expected, err := protocol.NewProbeMessage(protocol.MessageTypePong, 123)
	require.NoError(t, err)
	assert.Equal(t, expected, ch.sentOfKind(Text)[0].Data)
}

func TestReconnectExhaustedAfterBudget(t *testing.T) {
	ch := newFakeChannel()
	clock := newFakeClock()
	dialer := &fakeDialer{script: []*fakeChannel{ch}}
	s := newTestSession(t, dialer, clock, func(c *Config) { c.ReconnectAttempts = 2 })
	openSession(t, s)

	// Drop: arms reconnection without spending an attempt
	ch.drop(errors.New("connection reset"))
	e := nextEvent(t, s)
	require.IsType(t, Disconnect{}, e)
	assert.Error(t, e.(Disconnect).Err)
	assert.Equal(t, 1, clock.Pending())

	// First retry fails: 2 -> 1, rescheduled
	clock.Advance(DefaultReconnectDelay)
	require.Eventually(t, func() bool {
		return dialer.Dials() == 2 && clock.Pending() == 1
	}, waitFor, time.Millisecond)
	assert.Equal(t, Disconnected, s.State())

	// Second retry fails: 1 -> 0, gives up
	clock.Advance(DefaultReconnectDelay)
	assert.Equal(t, ReconnectExhausted{}, nextEvent(t, s))
	assert.Equal(t, 3, dialer.Dials())
	assert.Zero(t, clock.Pending())
	assert.True(t, errors.Is(s.Err(), ErrReconnectExhausted))
	assert.Equal(t, Disconnected, s.State())

	clock.Advance(10 * DefaultReconnectDelay)
	require.NoError(t, s.Close())

	var exhausted int
	for e := range s.Events() {
		if _, ok := e.(ReconnectExhausted); ok {
			exhausted++
		}
	}
	assert.Zero(t, exhausted, "no further events after giving up")
	assert.Equal(t, 3, dialer.Dials())
}

func TestReconnectRecovers(t *testing.T) {
	first, second := newFakeChannel(), newFakeChannel()
	clock := newFakeClock()
	dialer := &fakeDialer{script: []*fakeChannel{first, nil, second}}
	s := newTestSession(t, dialer, clock, nil)
	openSession(t, s)

	first.drop(errors.New("connection reset"))
	require.IsType(t, Disconnect{}, nextEvent(t, s))

	clock.Advance(DefaultReconnectDelay)
	require.Eventually(t, func() bool {
		return dialer.Dials() == 2 && clock.Pending() == 1
	}, waitFor, time.Millisecond)

	clock.Advance(DefaultReconnectDelay)
	require.IsType(t, Connected{}, nextEvent(t, s))
	assert.Equal(t, Open, s.State())
	assert.NoError(t, s.Err())

	require.NoError(t, s.Send([]int16{9}))
	assert.Len(t, second.sentOfKind(Binary), 1)
	assert.Empty(t, first.sentOfKind(Binary))
}

func TestInitialDialFailureRetries(t *testing.T) {
	ch := newFakeChannel()
	clock := newFakeClock()
	dialer := &fakeDialer{script: []*fakeChannel{nil, ch}}
	s := newTestSession(t, dialer, clock, nil)

	require.NoError(t, s.Open())
	require.Eventually(t, func() bool {
		return dialer.Dials() == 1 && clock.Pending() == 1
	}, waitFor, time.Millisecond)
	assert.Equal(t, Disconnected, s.State())

	clock.Advance(DefaultReconnectDelay)
	require.IsType(t, Connected{}, nextEvent(t, s))
}

func TestOpenAfterExhaustionResetsBudget(t *testing.T) {
	ch := newFakeChannel()
	clock := newFakeClock()
	dialer := &fakeDialer{script: []*fakeChannel{nil, nil, ch}}
	s := newTestSession(t, dialer, clock, func(c *Config) { c.ReconnectAttempts = 1 })

	require.NoError(t, s.Open())
	require.Eventually(t, func() bool { return clock.Pending() == 1 }, waitFor, time.Millisecond)
	clock.Advance(DefaultReconnectDelay)
	assert.Equal(t, ReconnectExhausted{}, nextEvent(t, s))
	assert.Equal(t, 2, dialer.Dials())

	require.NoError(t, s.Open())
	require.IsType(t, Connected{}, nextEvent(t, s))
	assert.NoError(t, s.Err())
}

func TestDisableReconnect(t *testing.T) {
	ch := newFakeChannel()
	clock := newFakeClock()
	dialer := &fakeDialer{script: []*fakeChannel{ch}}
	s := newTestSession(t, dialer, clock, func(c *Config) { c.DisableReconnect = true })
	openSession(t, s)

	ch.drop(errors.New("gone"))
	require.IsType(t, Disconnect{}, nextEvent(t, s))
	assert.Zero(t, clock.Pending())
	assert.Equal(t, 1, dialer.Dials())
}

func TestCloseStopsEverything(t *testing.T) {
	ch := newFakeChannel()
	clock := newFakeClock()
	s := newTestSession(t, &fakeDialer{script: []*fakeChannel{ch}}, clock, nil)
	openSession(t, s)

	require.NoError(t, s.Close())
	assert.Equal(t, Closed, s.State())
	assert.True(t, ch.isClosed())
	assert.Zero(t, clock.Pending())
	assert.ErrorIs(t, s.Open(), ErrClosed)
	assert.NoError(t, s.Send([]int16{1}))

	_, ok := <-s.Events()
	assert.False(t, ok)
	_, ok = <-s.Packets()
	assert.False(t, ok)

	// Idempotent
	assert.NoError(t, s.Close())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "closing", Closing.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "binary", Binary.String())
	assert.Equal(t, "text", Text.String())
}
