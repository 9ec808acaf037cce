// ABOUTME: Minimal media router used for local testing
// ABOUTME: Relays audio packets between participants of the same room
package router

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/audiorouter/voicelink/internal/discovery"
	"github.com/audiorouter/voicelink/pkg/protocol"
	"github.com/audiorouter/voicelink/pkg/transport"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPort is the router's listening port
	DefaultPort = 8930
	// Path is the websocket endpoint
	Path = "/audio"

	shutdownTimeout = 5 * time.Second
)

var log = logrus.WithField("component", "router")

// Config holds router configuration
type Config struct {
	// Port to listen on (default: 8930)
	Port int

	// Name advertised over mDNS (default: hostname)
	Name string

	// Loopback relays each packet back to its sender as well
	Loopback bool

	// EnableMDNS advertises the router as _voicelink._tcp
	EnableMDNS bool
}

// Server relays audio between websocket participants
type Server struct {
	config     Config
	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener
	mdns       *discovery.Manager

	clientsMu sync.RWMutex
	clients   map[string]*participant

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	shutdownMu sync.RWMutex
	isShutdown bool
}

type participant struct {
	id      string
	account string
	room    string
	name    string
	channel transport.Channel
}

// ParticipantInfo describes a connected participant
type ParticipantInfo struct {
	ID          string
	Account     string
	Room        string
	Participant string
}

// NewServer creates a router
func NewServer(config Config) *Server {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Name == "" {
		config.Name = "voicelink-router"
	}

	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:  make(map[string]*participant),
		stopChan: make(chan struct{}),
	}
}

// Handler returns the HTTP handler serving the websocket endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWebSocket)
	return mux
}

// Start serves until Stop is called
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called
func (s *Server) Serve(ln net.Listener) error {
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.Handler()}

	log.WithFields(logrus.Fields{
		"addr":     ln.Addr().String(),
		"loopback": s.config.Loopback,
	}).Info("Router listening")

	if s.config.EnableMDNS {
		port := s.config.Port
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
		s.mdns = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        port,
			Path:        Path,
		})
		if err := s.mdns.Advertise(); err != nil {
			log.WithError(err).Warn("Failed to advertise via mDNS")
		}
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-s.stopChan:
		log.Info("Router shutting down")
	case err := <-errChan:
		log.WithError(err).Error("HTTP server error")
		return err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.mdns != nil {
		s.mdns.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}

	// hijacked websocket connections are not closed by Shutdown
	s.clientsMu.RLock()
	for _, p := range s.clients {
		_ = p.channel.Close()
	}
	s.clientsMu.RUnlock()

	s.wg.Wait()
	log.Info("Router stopped cleanly")
	return nil
}

// Stop stops the router
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Participants lists connected participants
func (s *Server) Participants() []ParticipantInfo {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	out := make([]ParticipantInfo, 0, len(s.clients))
	for _, p := range s.clients {
		out = append(out, ParticipantInfo{
			ID:          p.id,
			Account:     p.account,
			Room:        p.room,
			Participant: p.name,
		})
	}
	return out
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	account := r.Header.Get(transport.HeaderAccount)
	room := r.Header.Get(transport.HeaderRoom)
	name := r.Header.Get(transport.HeaderParticipant)
	if account == "" || room == "" || name == "" {
		log.WithField("remote", r.RemoteAddr).Warn("Rejecting connection without routing headers")
		http.Error(w, "account, room and participant headers are required", http.StatusBadRequest)
		return
	}

	// Add must not race the Wait in Serve
	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		http.Error(w, "router shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.shutdownMu.RUnlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	p := &participant{
		id:      uuid.New().String(),
		account: account,
		room:    room,
		name:    name,
		channel: transport.NewWebSocketChannel(conn),
	}

	s.handleParticipant(p)
}

// register adds p to the relay set unless shutdown already began; Serve
// closes every registered channel after setting isShutdown
func (s *Server) register(p *participant) bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	if s.isShutdown {
		return false
	}
	s.clientsMu.Lock()
	s.clients[p.id] = p
	s.clientsMu.Unlock()
	return true
}

// handleParticipant relays the participant's packets until the channel ends
func (s *Server) handleParticipant(p *participant) {
	logger := log.WithFields(logrus.Fields{
		"id":          p.id,
		"account":     p.account,
		"room":        p.room,
		"participant": p.name,
	})

	if !s.register(p) {
		logger.Info("Router shutting down, dropping participant")
		_ = p.channel.Close()
		return
	}
	logger.Info("Participant joined")

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, p.id)
		s.clientsMu.Unlock()
		_ = p.channel.Close()
		logger.Info("Participant left")
	}()

	for msg := range p.channel.Messages() {
		switch msg.Kind {
		case transport.Binary:
			if _, err := protocol.Decode(msg.Data); err != nil {
				logger.WithError(err).Debug("Dropping malformed packet")
				continue
			}
			s.relay(p, msg.Data)
		case transport.Text:
			s.handleControl(p, msg.Data, logger)
		}
	}

	if err := p.channel.Err(); err != nil {
		logger.WithError(err).Debug("Participant channel ended")
	}
}

// relay forwards a packet to every other member of the sender's room
func (s *Server) relay(from *participant, data []byte) {
	s.clientsMu.RLock()
	targets := make([]*participant, 0, len(s.clients))
	for _, p := range s.clients {
		if p.account != from.account || p.room != from.room {
			continue
		}
		if p == from && !s.config.Loopback {
			continue
		}
		targets = append(targets, p)
	}
	s.clientsMu.RUnlock()

	for _, p := range targets {
		if err := p.channel.Send(transport.Binary, data); err != nil {
			log.WithError(err).WithField("id", p.id).Debug("Relay failed")
		}
	}
}

func (s *Server) handleControl(p *participant, data []byte, logger *logrus.Entry) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		logger.WithError(err).Debug("Ignoring control message")
		return
	}
	if msg.Type != protocol.MessageTypePing {
		return
	}

	probe, err := msg.ParseProbe()
	if err != nil {
		logger.WithError(err).Debug("Ignoring malformed ping")
		return
	}
	pong, err := protocol.NewProbeMessage(protocol.MessageTypePong, probe.TimeStart)
	if err != nil {
		return
	}
	if err := p.channel.Send(transport.Text, pong); err != nil {
		logger.WithError(err).Debug("Failed to answer ping")
	}
}
