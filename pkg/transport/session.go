// ABOUTME: Transport session owning the audio channel to the media router
// ABOUTME: Single event loop runs connect, bounded reconnect and liveness probing
package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiorouter/voicelink/pkg/protocol"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "transport")

const (
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = time.Second
	DefaultProbeInterval     = 500 * time.Millisecond

	eventQueueDepth  = 64
	packetQueueDepth = 64
)

// Config holds session configuration
type Config struct {
	Dialer Dialer

	// Header identifies outgoing packets; Count is filled per packet
	Header protocol.Header

	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ProbeInterval     time.Duration
	DisableReconnect  bool

	Clock Clock
}

// Counters tracks packet traffic since the last snapshot
type Counters struct {
	PacketsTx int64
	SamplesTx int64
	PacketsRx int64
	SamplesRx int64
	Dropped   int64
}

// Session sends and receives audio packets over a Channel and keeps it
// connected. All state transitions happen on one loop goroutine; timers,
// dials and channel readers report to it through the inbox.
type Session struct {
	config Config
	clock  Clock

	inbox   chan any
	events  chan Event
	packets chan *protocol.Packet

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	readers  sync.WaitGroup

	// written only by the loop
	mu     sync.RWMutex
	state  State
	active Channel
	err    error

	// loop-owned
	gen          uint64
	reconnecting bool
	attemptsLeft int
	retryTimer   Timer
	probeTimer   Timer

	packetsTx atomic.Int64
	samplesTx atomic.Int64
	packetsRx atomic.Int64
	samplesRx atomic.Int64
	dropped   atomic.Int64

	closeOnce sync.Once
}

type openRequest struct{}

type closeRequest struct {
	done chan struct{}
}

type dialResult struct {
	gen uint64
	id  string
	ch  Channel
	err error
}

type channelDown struct {
	gen uint64
	err error
}

type retryDue struct{ gen uint64 }

type probeDue struct{ gen uint64 }

type probeResult struct {
	gen uint64
	rtt time.Duration
}

// NewSession validates config and starts the session loop. The session
// stays Disconnected until Open is called. Close releases it.
func NewSession(config Config) (*Session, error) {
	if config.Dialer == nil {
		return nil, fmt.Errorf("%w: dialer is required", ErrConfiguration)
	}
	if config.Header.Account == "" {
		return nil, fmt.Errorf("%w: account is required", ErrConfiguration)
	}
	if config.Header.Room == "" {
		return nil, fmt.Errorf("%w: room is required", ErrConfiguration)
	}
	if config.Header.Participant == "" {
		return nil, fmt.Errorf("%w: participant is required", ErrConfiguration)
	}
	if config.Header.Rate <= 0 {
		return nil, fmt.Errorf("%w: rate is required", ErrConfiguration)
	}
	if err := protocol.ValidateHeader(config.Header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if config.ReconnectAttempts <= 0 {
		config.ReconnectAttempts = DefaultReconnectAttempts
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultReconnectDelay
	}
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = DefaultProbeInterval
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		config:       config,
		clock:        config.Clock,
		inbox:        make(chan any),
		events:       make(chan Event, eventQueueDepth),
		packets:      make(chan *protocol.Packet, packetQueueDepth),
		ctx:          ctx,
		cancel:       cancel,
		loopDone:     make(chan struct{}),
		state:        Disconnected,
		attemptsLeft: config.ReconnectAttempts,
	}

	go s.run()

	return s, nil
}

// Open starts connecting. Calling it after reconnection gave up starts
// over with a full reconnect budget.
func (s *Session) Open() error {
	select {
	case s.inbox <- openRequest{}:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	}
}

// Close stops reconnection, closes the channel and ends the event and
// packet streams
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		done := make(chan struct{})
		select {
		case s.inbox <- closeRequest{done: done}:
			<-done
		case <-s.loopDone:
		}
		s.cancel()
		<-s.loopDone
		s.readers.Wait()
		close(s.packets)
		close(s.events)
	})
	return nil
}

// Send encodes and sends one frame of network samples. It does nothing
// unless the session is Open.
func (s *Session) Send(samples []int16) error {
	s.mu.RLock()
	ch := s.active
	open := s.state == Open
	s.mu.RUnlock()

	if !open || ch == nil {
		return nil
	}

	data, err := protocol.Encode(s.config.Header, samples)
	if err != nil {
		return err
	}
	if err := ch.Send(Binary, data); err != nil {
		return err
	}

	s.packetsTx.Add(1)
	s.samplesTx.Add(int64(len(samples)))
	return nil
}

// Packets delivers decoded packets in arrival order
func (s *Session) Packets() <-chan *protocol.Packet {
	return s.packets
}

// Events delivers session events; closed after Close
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current connection state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns ErrReconnectExhausted after reconnection gave up, else nil
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Counters returns traffic counters without resetting them
func (s *Session) Counters() Counters {
	return Counters{
		PacketsTx: s.packetsTx.Load(),
		SamplesTx: s.samplesTx.Load(),
		PacketsRx: s.packetsRx.Load(),
		SamplesRx: s.samplesRx.Load(),
		Dropped:   s.dropped.Load(),
	}
}

// SnapshotCounters returns traffic counters and resets them
func (s *Session) SnapshotCounters() Counters {
	return Counters{
		PacketsTx: s.packetsTx.Swap(0),
		SamplesTx: s.samplesTx.Swap(0),
		PacketsRx: s.packetsRx.Swap(0),
		SamplesRx: s.samplesRx.Swap(0),
		Dropped:   s.dropped.Swap(0),
	}
}

// post hands a message to the loop unless the session is shutting down
func (s *Session) post(msg any) {
	select {
	case s.inbox <- msg:
	case <-s.ctx.Done():
	}
}

func (s *Session) run() {
	defer close(s.loopDone)

	for {
		select {
		case msg := <-s.inbox:
			if s.handle(msg) {
				return
			}
		case <-s.ctx.Done():
			s.shutdown()
			return
		}
	}
}

// handle applies one message and reports whether the loop should exit
func (s *Session) handle(msg any) bool {
	switch m := msg.(type) {
	case openRequest:
		s.handleOpen()
	case dialResult:
		s.handleDialResult(m)
	case channelDown:
		s.handleChannelDown(m)
	case retryDue:
		s.handleRetry(m)
	case probeDue:
		s.handleProbe(m)
	case probeResult:
		if m.gen == s.gen && s.State() == Open {
			s.emit(Latency{RTT: m.rtt})
		}
	case closeRequest:
		s.shutdown()
		close(m.done)
		return true
	}
	return false
}

func (s *Session) handleOpen() {
	switch s.State() {
	case Connecting, Open:
		return
	}

	s.reconnecting = false
	s.attemptsLeft = s.config.ReconnectAttempts
	s.stopTimer(&s.retryTimer)
	s.setErr(nil)
	s.dial()
}

func (s *Session) dial() {
	s.gen++
	gen := s.gen
	id := uuid.NewString()
	s.setState(Connecting, nil)

	log.WithFields(logrus.Fields{
		"connection": id,
		"room":       s.config.Header.Room,
	}).Debug("Connecting")

	go func() {
		ch, err := s.config.Dialer.Dial(s.ctx)
		select {
		case s.inbox <- dialResult{gen: gen, id: id, ch: ch, err: err}:
		case <-s.ctx.Done():
			if ch != nil {
				_ = ch.Close()
			}
		}
	}()
}

func (s *Session) handleDialResult(m dialResult) {
	if m.gen != s.gen || s.State() != Connecting {
		if m.ch != nil {
			_ = m.ch.Close()
		}
		return
	}

	if m.err != nil {
		log.WithError(m.err).WithField("connection", m.id).Warn("Connection attempt failed")
		s.setState(Disconnected, nil)
		s.handleFailure()
		return
	}

	s.setState(Open, m.ch)
	s.attemptsLeft = s.config.ReconnectAttempts
	s.reconnecting = false

	s.readers.Add(1)
	go s.readChannel(m.gen, m.ch)

	s.scheduleProbe()

	log.WithField("connection", m.id).Info("Connected to media router")
	s.emit(Connected{ConnectionID: m.id})
}

func (s *Session) handleChannelDown(m channelDown) {
	if m.gen != s.gen || s.State() != Open {
		return
	}

	s.mu.RLock()
	ch := s.active
	s.mu.RUnlock()

	s.setState(Disconnected, nil)
	_ = ch.Close()
	s.stopTimer(&s.probeTimer)

	log.WithError(m.err).Warn("Connection lost")
	s.handleFailure()
	s.emit(Disconnect{Err: m.err})
}

// handleFailure runs the reconnect policy after the channel closed or an
// attempt failed. The first failure only arms reconnection; each later
// one spends an attempt.
func (s *Session) handleFailure() {
	if s.config.DisableReconnect {
		return
	}

	if !s.reconnecting {
		s.reconnecting = true
		s.scheduleRetry()
		return
	}

	s.attemptsLeft--
	if s.attemptsLeft > 0 {
		s.scheduleRetry()
		return
	}

	s.reconnecting = false
	s.setErr(ErrReconnectExhausted)
	log.WithField("attempts", s.config.ReconnectAttempts).Error("Giving up reconnecting")
	s.emit(ReconnectExhausted{})
}

func (s *Session) scheduleRetry() {
	s.stopTimer(&s.retryTimer)
	gen := s.gen
	log.WithFields(logrus.Fields{
		"delay":     s.config.ReconnectDelay,
		"remaining": s.attemptsLeft,
	}).Debug("Scheduling reconnect")
	s.retryTimer = s.clock.AfterFunc(s.config.ReconnectDelay, func() {
		s.post(retryDue{gen: gen})
	})
}

func (s *Session) handleRetry(m retryDue) {
	if m.gen != s.gen || !s.reconnecting || s.State() != Disconnected {
		return
	}
	s.retryTimer = nil
	s.dial()
}

func (s *Session) scheduleProbe() {
	gen := s.gen
	s.probeTimer = s.clock.AfterFunc(s.config.ProbeInterval, func() {
		s.post(probeDue{gen: gen})
	})
}

func (s *Session) handleProbe(m probeDue) {
	if m.gen != s.gen || s.State() != Open {
		return
	}

	s.mu.RLock()
	ch := s.active
	s.mu.RUnlock()

	data, err := protocol.NewProbeMessage(protocol.MessageTypePing, s.clock.Now().UnixMilli())
	if err == nil {
		err = ch.Send(Text, data)
	}
	if err != nil {
		log.WithError(err).Debug("Failed to send probe")
	}

	s.scheduleProbe()
}

func (s *Session) shutdown() {
	s.setState(Closing, nil)
	s.reconnecting = false
	s.stopTimer(&s.retryTimer)
	s.stopTimer(&s.probeTimer)

	s.mu.Lock()
	ch := s.active
	s.active = nil
	s.mu.Unlock()
	if ch != nil {
		_ = ch.Close()
	}

	s.gen++
	s.setState(Closed, nil)
	s.cancel()
	log.Debug("Session closed")
}

// readChannel decodes inbound messages until the channel ends
func (s *Session) readChannel(gen uint64, ch Channel) {
	defer s.readers.Done()

	for msg := range ch.Messages() {
		switch msg.Kind {
		case Binary:
			if !s.handlePacket(msg.Data) {
				return
			}
		case Text:
			s.handleControl(gen, ch, msg.Data)
		}
	}

	s.post(channelDown{gen: gen, err: ch.Err()})
}

// handlePacket reports false once the session is shutting down
func (s *Session) handlePacket(data []byte) bool {
	pkt, err := protocol.Decode(data)
	if err != nil {
		s.dropped.Add(1)
		log.WithError(err).WithField("bytes", len(data)).Debug("Dropping packet")
		return true
	}

	s.packetsRx.Add(1)
	s.samplesRx.Add(int64(len(pkt.Samples)))

	select {
	case s.packets <- pkt:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) handleControl(gen uint64, ch Channel, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		log.WithError(err).Debug("Ignoring control message")
		return
	}

	switch msg.Type {
	case protocol.MessageTypePing:
		probe, err := msg.ParseProbe()
		if err != nil {
			log.WithError(err).Debug("Ignoring ping")
			return
		}
		reply, err := protocol.NewProbeMessage(protocol.MessageTypePong, probe.TimeStart)
		if err == nil {
			err = ch.Send(Text, reply)
		}
		if err != nil {
			log.WithError(err).Debug("Failed to answer ping")
		}

	case protocol.MessageTypePong:
		probe, err := msg.ParseProbe()
		if err != nil {
			log.WithError(err).Debug("Ignoring pong")
			return
		}
		rtt := time.Duration(s.clock.Now().UnixMilli()-probe.TimeStart) * time.Millisecond
		s.post(probeResult{gen: gen, rtt: rtt})

	default:
		log.WithField("type", msg.Type).Debug("Unknown control message")
	}
}

func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		log.WithField("event", fmt.Sprintf("%T", e)).Warn("Event queue full, dropping event")
	}
}

func (s *Session) setState(state State, active Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if state == Open {
		s.active = active
	} else if state != Closing && state != Closed {
		s.active = nil
	}
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Session) stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
