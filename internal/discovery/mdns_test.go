// ABOUTME: Tests for mDNS discovery
// ABOUTME: Manager construction, entry conversion and lifecycle
package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "Test Router", Port: 8930})
	require.NotNil(t, mgr)
	defer mgr.Stop()

	assert.Equal(t, "Test Router", mgr.config.ServiceName)
	assert.Equal(t, 8930, mgr.config.Port)
	assert.Equal(t, DefaultPath, mgr.config.Path)
	assert.NotNil(t, mgr.Routers())
}

func TestStopCancelsContext(t *testing.T) {
	mgr := NewManager(Config{})
	mgr.Stop()

	select {
	case <-mgr.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after Stop")
	}
}

func TestEntryToRouter(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "studio._voicelink._tcp.local.",
		AddrV4:     net.ParseIP("192.168.1.20"),
		Port:       8930,
		InfoFields: []string{"path=/rooms"},
	}

	r := entryToRouter(entry)
	require.NotNil(t, r)
	assert.Equal(t, "192.168.1.20", r.Host)
	assert.Equal(t, 8930, r.Port)
	assert.Equal(t, "/rooms", r.Path)
	assert.Equal(t, "ws://192.168.1.20:8930/rooms", r.URL())
}

func TestEntryWithoutIPv4IsSkipped(t *testing.T) {
	assert.Nil(t, entryToRouter(&mdns.ServiceEntry{Name: "v6-only", Port: 1}))
}

func TestRouterURLDefaultsPath(t *testing.T) {
	r := &RouterInfo{Host: "10.0.0.1", Port: 9000}
	assert.Equal(t, "ws://10.0.0.1:9000/audio", r.URL())
}

func TestFindRouterHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FindRouter(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetLocalIPsAreIPv4(t *testing.T) {
	ips, err := getLocalIPs()
	require.NoError(t, err)
	for _, ip := range ips {
		assert.NotNil(t, ip.To4())
		assert.False(t, ip.IsLoopback())
	}
}
