// ABOUTME: mDNS service discovery for the media router
// ABOUTME: The router advertises itself, the client browses for routers
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

const (
	// ServiceType is the DNS-SD type advertised by routers
	ServiceType = "_voicelink._tcp"
	// DefaultPath is the websocket path advertised in the TXT record
	DefaultPath = "/audio"

	browseTimeout = 3 * time.Second
)

var log = logrus.WithField("component", "discovery")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	routers chan *RouterInfo
}

// RouterInfo describes a discovered router
type RouterInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// URL returns the websocket address of the router
func (r *RouterInfo) URL() string {
	path := r.Path
	if path == "" {
		path = DefaultPath
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(r.Host, fmt.Sprint(r.Port)), path)
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		routers: make(chan *RouterInfo, 10),
	}
}

// Advertise publishes the router until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.WithFields(logrus.Fields{
		"name": m.config.ServiceName,
		"port": m.config.Port,
		"type": ServiceType,
	}).Info("Advertising mDNS service")

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for routers until Stop is called
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				router := entryToRouter(entry)
				if router == nil {
					continue
				}

				log.WithFields(logrus.Fields{
					"name": router.Name,
					"host": router.Host,
					"port": router.Port,
				}).Debug("Discovered router")

				select {
				case m.routers <- router:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service:             ServiceType,
			Domain:              "local",
			Timeout:             browseTimeout,
			Entries:             entries,
			DisableIPv6:         true,
			WantUnicastResponse: false,
		}

		if err := mdns.Query(params); err != nil {
			log.WithError(err).Debug("mDNS query failed")
		}
		close(entries)
	}
}

// entryToRouter converts a service entry, returning nil when it has no
// usable IPv4 address
func entryToRouter(entry *mdns.ServiceEntry) *RouterInfo {
	if entry.AddrV4 == nil {
		return nil
	}
	router := &RouterInfo{
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: DefaultPath,
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok && path != "" {
			router.Path = path
		}
	}
	return router
}

// Routers returns the channel of discovered routers
func (m *Manager) Routers() <-chan *RouterInfo {
	return m.routers
}

// FindRouter browses until the first router is found or ctx ends
func FindRouter(ctx context.Context) (*RouterInfo, error) {
	m := NewManager(Config{})
	defer m.Stop()

	if err := m.Browse(); err != nil {
		return nil, err
	}

	select {
	case r := <-m.Routers():
		return r, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no router found: %w", ctx.Err())
	}
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns local IPv4 addresses of interfaces that are up
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
