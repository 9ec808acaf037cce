// ABOUTME: Application configuration loaded with viper
// ABOUTME: Embedded defaults, XDG config file, VOICELINK_ environment overrides
package config

import (
	"bytes"
	_ "embed" // default configuration file
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/audiorouter/voicelink/pkg/jitter"
	"github.com/audiorouter/voicelink/pkg/transport"
	"github.com/audiorouter/voicelink/pkg/voicelink"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	appName  = "voicelink"
	FileName = appName + ".toml"

	OutputMalgo = "malgo"
	OutputOto   = "oto"

	SourceMic  = "mic"
	SourceTone = "tone"
)

//go:embed voicelink.toml
var defaultConfigFile []byte

var log = logrus.WithField("component", "config")

// Settings is the typed view of the configuration
type Settings struct {
	ServerURL   string
	Account     string
	Room        string
	Participant string

	CaptureRate int
	FrameSize   int
	Output      string
	Source      string

	Buffer jitter.Config

	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ProbeInterval     time.Duration
	DisableReconnect  bool

	StatsInterval time.Duration

	RouterPort     int
	RouterLoopback bool
	RouterMDNS     bool

	LogFile string
	Debug   bool
}

// Default returns the embedded default configuration
func Default() []byte {
	return bytes.Clone(defaultConfigFile)
}

// Init reads file into v, first writing the embedded defaults there when the
// file does not exist. Environment variables prefixed VOICELINK_ override
// file values.
func Init(v *viper.Viper, file string) error {
	if file == "" {
		return fmt.Errorf("config file path is empty")
	}
	v.SetConfigType("toml")
	v.SetEnvPrefix(appName)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// defaults first so keys missing from an older file still resolve
	if err := v.ReadConfig(bytes.NewReader(defaultConfigFile)); err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if _, err := os.Stat(file); err != nil {
		log.WithField("file", file).Info("Config file not found, writing defaults")
		if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
		if err := os.WriteFile(file, defaultConfigFile, 0o600); err != nil {
			return fmt.Errorf("error writing default config: %w", err)
		}
		v.SetConfigFile(file)
		return nil
	}

	v.SetConfigFile(file)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", file, err)
	}
	return nil
}

// Dir returns the application config directory, honouring XDG_CONFIG_HOME
// everywhere and using ~/.config on macOS
func Dir() (string, error) {
	var configHome string
	if runtime.GOOS == "darwin" && os.Getenv("XDG_CONFIG_HOME") == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to find home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	} else {
		configHome = xdg.ConfigHome
	}
	return filepath.Join(configHome, appName), nil
}

// DefaultFile returns the default config file path
func DefaultFile() string {
	dir, err := Dir()
	if err != nil {
		return FileName
	}
	return filepath.Join(dir, FileName)
}

// Load builds Settings from v
func Load(v *viper.Viper) Settings {
	return Settings{
		ServerURL:   v.GetString("server.url"),
		Account:     v.GetString("session.account"),
		Room:        v.GetString("session.room"),
		Participant: v.GetString("session.participant"),

		CaptureRate: v.GetInt("audio.capture-rate"),
		FrameSize:   v.GetInt("audio.frame-size"),
		Output:      v.GetString("audio.output"),
		Source:      v.GetString("audio.source"),

		Buffer: jitter.Config{
			SampleRate:        v.GetInt("audio.capture-rate"),
			HoldOffMs:         v.GetInt("buffer.hold-off-ms"),
			MaxBufferMs:       v.GetInt("buffer.max-buffer-ms"),
			MatchWindow:       v.GetInt("buffer.match-window-samples"),
			SearchWindowMs:    v.GetInt("buffer.search-window-ms"),
			MatchThreshold:    v.GetFloat64("buffer.match-threshold"),
			DisableCorrection: v.GetBool("buffer.disable-correction"),
		},

		ReconnectAttempts: v.GetInt("transport.reconnect-attempts"),
		ReconnectDelay:    time.Duration(v.GetInt("transport.reconnect-delay-ms")) * time.Millisecond,
		ProbeInterval:     time.Duration(v.GetInt("transport.probe-interval-ms")) * time.Millisecond,
		DisableReconnect:  v.GetBool("transport.disable-reconnect"),

		StatsInterval: time.Duration(v.GetInt("stats.interval-ms")) * time.Millisecond,

		RouterPort:     v.GetInt("router.port"),
		RouterLoopback: v.GetBool("router.loopback"),
		RouterMDNS:     v.GetBool("router.mdns"),

		LogFile: v.GetString("log.file"),
		Debug:   v.GetBool("debug"),
	}
}

// Validate checks what a client connection needs. The server URL may be
// left empty when it will be discovered.
func (s Settings) Validate(requireURL bool) error {
	var missing []string
	if requireURL && s.ServerURL == "" {
		missing = append(missing, "server.url")
	}
	if s.Account == "" {
		missing = append(missing, "session.account")
	}
	if s.Room == "" {
		missing = append(missing, "session.room")
	}
	if s.Participant == "" {
		missing = append(missing, "session.participant")
	}
	if s.CaptureRate <= 0 {
		missing = append(missing, "audio.capture-rate")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", transport.ErrConfiguration, strings.Join(missing, ", "))
	}
	if s.FrameSize <= 0 || s.FrameSize%2 != 0 {
		return fmt.Errorf("%w: audio.frame-size %d must be positive and even", transport.ErrConfiguration, s.FrameSize)
	}
	if s.StatsInterval < 0 {
		return fmt.Errorf("%w: stats.interval-ms %d must not be negative", transport.ErrConfiguration, s.StatsInterval.Milliseconds())
	}
	switch s.Output {
	case OutputMalgo, OutputOto:
	default:
		return fmt.Errorf("%w: unknown audio.output %q", transport.ErrConfiguration, s.Output)
	}
	return nil
}

// ClientConfig converts the settings into a client configuration
func (s Settings) ClientConfig() voicelink.Config {
	return voicelink.Config{
		ServerURL:         s.ServerURL,
		Account:           s.Account,
		Room:              s.Room,
		Participant:       s.Participant,
		CaptureRate:       s.CaptureRate,
		Buffer:            s.Buffer,
		ReconnectAttempts: s.ReconnectAttempts,
		ReconnectDelay:    s.ReconnectDelay,
		ProbeInterval:     s.ProbeInterval,
		DisableReconnect:  s.DisableReconnect,
		StatsInterval:     s.StatsInterval,
	}
}

// Render prints the effective configuration as TOML
func Render(v *viper.Viper) ([]byte, error) {
	data, err := toml.Marshal(v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("marshaling error: %w", err)
	}
	return data, nil
}
