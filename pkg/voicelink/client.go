// ABOUTME: High-level voice client
// ABOUTME: Wires rate conversion, the transport session and the playout buffer
package voicelink

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiorouter/voicelink/pkg/audio/resample"
	"github.com/audiorouter/voicelink/pkg/jitter"
	"github.com/audiorouter/voicelink/pkg/protocol"
	"github.com/audiorouter/voicelink/pkg/transport"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCaptureRate     = 48000
	DefaultStatsInterval   = 10 * time.Second
	DefaultCounterInterval = time.Second

	eventQueueDepth = 64
)

var log = logrus.WithField("component", "voicelink")

// Config holds client configuration
type Config struct {
	// ServerURL is the router's websocket address, e.g. ws://host:8930/audio
	ServerURL string

	// Dialer overrides ServerURL, e.g. with a transport.DataChannelDialer
	Dialer transport.Dialer

	Account     string
	Room        string
	Participant string

	// CaptureRate is the capture and playback rate (default: 48000). The
	// network carries half of it.
	CaptureRate int

	// Buffer tunes the playout buffer; its SampleRate is always CaptureRate
	Buffer jitter.Config

	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ProbeInterval     time.Duration
	DisableReconnect  bool

	// StatsInterval is how often buffer statistics are logged (default: 10s)
	StatsInterval time.Duration

	// CounterInterval is how often traffic counters are logged (default: 1s)
	CounterInterval time.Duration

	Clock transport.Clock
}

// Stats is a point-in-time view of the client
type Stats struct {
	Buffer         jitter.Stats
	BufferDepth    int           // samples queued for playback
	BufferMs       int           // BufferDepth in milliseconds
	Transport      transport.Counters
	State          transport.State
	RTT            time.Duration // last measured round trip
	MicEnabled     bool
	RateMismatches int64 // packets dropped for carrying another rate
}

// Client sends captured audio and plays back what the router relays
type Client struct {
	config      Config
	networkRate int

	session *transport.Session
	buffer  *jitter.Buffer

	events chan transport.Event

	micEnabled     atomic.Bool
	rtt            atomic.Int64
	rateMismatches atomic.Int64

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewClient validates config and builds a client. Nothing is dialed until
// Open is called.
func NewClient(config Config) (*Client, error) {
	if config.Account == "" || config.Room == "" || config.Participant == "" {
		return nil, fmt.Errorf("%w: account, room and participant are required", transport.ErrConfiguration)
	}
	if config.CaptureRate == 0 {
		config.CaptureRate = DefaultCaptureRate
	}
	if config.CaptureRate < 0 || config.CaptureRate%2 != 0 {
		return nil, fmt.Errorf("%w: capture rate %d must be positive and even", transport.ErrConfiguration, config.CaptureRate)
	}
	if config.StatsInterval <= 0 {
		config.StatsInterval = DefaultStatsInterval
	}
	if config.CounterInterval <= 0 {
		config.CounterInterval = DefaultCounterInterval
	}

	networkRate := config.CaptureRate / 2
	header := protocol.Header{
		Account:     config.Account,
		Room:        config.Room,
		Participant: config.Participant,
		Rate:        networkRate,
	}

	dialer := config.Dialer
	if dialer == nil {
		if config.ServerURL == "" {
			return nil, fmt.Errorf("%w: server URL or dialer is required", transport.ErrConfiguration)
		}
		dialer = transport.NewWebSocketDialer(config.ServerURL, header)
	}

	bufConfig := config.Buffer
	bufConfig.SampleRate = config.CaptureRate
	buffer, err := jitter.New(bufConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrConfiguration, err)
	}

	session, err := transport.NewSession(transport.Config{
		Dialer:            dialer,
		Header:            header,
		ReconnectAttempts: config.ReconnectAttempts,
		ReconnectDelay:    config.ReconnectDelay,
		ProbeInterval:     config.ProbeInterval,
		DisableReconnect:  config.DisableReconnect,
		Clock:             config.Clock,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:      config,
		networkRate: networkRate,
		session:     session,
		buffer:      buffer,
		events:      make(chan transport.Event, eventQueueDepth),
		ctx:         ctx,
		cancel:      cancel,
	}
	c.micEnabled.Store(true)

	c.wg.Add(3)
	go c.receiveLoop()
	go c.eventLoop()
	go c.statsLoop()

	return c, nil
}

// Open starts connecting. Cancelling ctx closes the client.
func (c *Client) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.session.Open(); err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.ctx.Done():
		}
	}()
	return nil
}

// Write sends one captured frame at the capture rate. Frames are dropped
// while the microphone is disabled or the session is not open.
func (c *Client) Write(frame []float32) error {
	if !c.micEnabled.Load() || len(frame) < 2 {
		return nil
	}
	return c.session.Send(resample.Downsample(frame))
}

// Read fills out with playback samples at the capture rate and returns how
// many came from the network; the rest is silence
func (c *Client) Read(out []float32) int {
	return c.buffer.Read(out)
}

// Events delivers connection events; closed after Close
func (c *Client) Events() <-chan transport.Event {
	return c.events
}

// SetMicEnabled gates outgoing audio
func (c *Client) SetMicEnabled(enabled bool) {
	c.micEnabled.Store(enabled)
	log.WithField("enabled", enabled).Info("Microphone toggled")
}

// MicEnabled reports whether captured audio is sent
func (c *Client) MicEnabled() bool {
	return c.micEnabled.Load()
}

// State returns the transport state
func (c *Client) State() transport.State {
	return c.session.State()
}

// Err returns the terminal transport error, if any
func (c *Client) Err() error {
	return c.session.Err()
}

// Stats returns current statistics without resetting them
func (c *Client) Stats() Stats {
	depth := c.buffer.Len()
	return Stats{
		Buffer:         c.buffer.Stats(),
		BufferDepth:    depth,
		BufferMs:       depth * 1000 / c.config.CaptureRate,
		Transport:      c.session.Counters(),
		State:          c.session.State(),
		RTT:            time.Duration(c.rtt.Load()),
		MicEnabled:     c.micEnabled.Load(),
		RateMismatches: c.rateMismatches.Load(),
	}
}

// Close disconnects and stops all background work
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.session.Close()
		c.wg.Wait()
		close(c.events)
	})
	return c.closeErr
}

// receiveLoop upsamples each packet and hands it to the playout buffer in
// arrival order
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	for pkt := range c.session.Packets() {
		if pkt.Header.Rate != c.networkRate {
			c.rateMismatches.Add(1)
			log.WithFields(logrus.Fields{
				"rate":        pkt.Header.Rate,
				"expected":    c.networkRate,
				"participant": pkt.Header.Participant,
			}).Warn("Dropping packet with unexpected rate")
			continue
		}

		frame := resample.Upsample(pkt.Samples, c.buffer.LastPCM())
		if delta := c.buffer.Write(frame); delta != 0 {
			log.WithFields(logrus.Fields{
				"delta": delta,
				"depth": c.buffer.Len(),
			}).Debug("Playout buffer corrected")
		}
	}
}

func (c *Client) eventLoop() {
	defer c.wg.Done()

	for e := range c.session.Events() {
		switch ev := e.(type) {
		case transport.Connected:
			log.WithField("connection", ev.ConnectionID).Info("Connected")
		case transport.Disconnect:
			log.WithError(ev.Err).Warn("Disconnected")
		case transport.ReconnectExhausted:
			log.Error("Reconnect attempts exhausted")
		case transport.Latency:
			c.rtt.Store(int64(ev.RTT))
		}

		select {
		case c.events <- e:
		default:
			log.WithField("event", fmt.Sprintf("%T", e)).Debug("Client event queue full, dropping event")
		}
	}
}

// statsLoop logs and resets buffer statistics and traffic counters
func (c *Client) statsLoop() {
	defer c.wg.Done()

	statsTicker := time.NewTicker(c.config.StatsInterval)
	defer statsTicker.Stop()
	counterTicker := time.NewTicker(c.config.CounterInterval)
	defer counterTicker.Stop()

	for {
		select {
		case <-statsTicker.C:
			stats := c.buffer.SnapshotStats()
			log.WithFields(stats.Fields()).
				WithField("depth", c.buffer.Len()).
				Info("Playout buffer statistics")
		case <-counterTicker.C:
			counters := c.session.SnapshotCounters()
			log.WithFields(logrus.Fields{
				"tx_packets": counters.PacketsTx,
				"tx_samples": counters.SamplesTx,
				"rx_packets": counters.PacketsRx,
				"rx_samples": counters.SamplesRx,
				"dropped":    counters.Dropped,
			}).Debug("Transport counters")
		case <-c.ctx.Done():
			return
		}
	}
}
