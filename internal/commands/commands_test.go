// ABOUTME: Tests for the command tree
// ABOUTME: Runs commands in-process against a temporary config file
package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/audiorouter/voicelink/internal/version"
	"github.com/audiorouter/voicelink/pkg/transport"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	args = append(args,
		"--config", filepath.Join(dir, "voicelink.toml"),
		"--log-file", filepath.Join(dir, "voicelink.log"),
	)

	root := NewRootCommand(viper.New())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.String()+"\n", out)
}

func TestConfigShowRendersTOML(t *testing.T) {
	out, err := run(t, "config", "show")
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, toml.Unmarshal([]byte(out), &parsed))
	router, ok := parsed["router"].(map[string]any)
	require.True(t, ok, "router table missing in %s", out)
	assert.Equal(t, int64(8930), router["port"])
}

func TestConfigShowReflectsFlags(t *testing.T) {
	out, err := run(t, "config", "show", "--debug")
	require.NoError(t, err)
	assert.Contains(t, out, "debug = true")
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "custom.toml")

	root := NewRootCommand(viper.New())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "path", "--config", file})
	require.NoError(t, root.Execute())

	assert.Equal(t, file, strings.TrimSpace(out.String()))
	_, err := os.Stat(file)
	assert.NoError(t, err, "defaults should be written on first run")
}

func TestConnectRequiresSessionIdentity(t *testing.T) {
	_, err := run(t, "connect", "--no-tui")
	require.ErrorIs(t, err, transport.ErrConfiguration)
	assert.Contains(t, err.Error(), "session.account")
}

func TestConnectRejectsUnknownOutput(t *testing.T) {
	_, err := run(t, "connect", "--no-tui",
		"--account", "acme", "--room", "standup", "--participant", "alice",
		"--output", "alsa")
	require.ErrorIs(t, err, transport.ErrConfiguration)
	assert.Contains(t, err.Error(), "audio.output")
}

func TestUnknownCommand(t *testing.T) {
	_, err := run(t, "dance")
	assert.Error(t, err)
}
