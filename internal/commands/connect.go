// ABOUTME: connect command
// ABOUTME: Joins a room with a capture source, a playback device and the TUI
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/audiorouter/voicelink/internal/config"
	"github.com/audiorouter/voicelink/internal/device"
	"github.com/audiorouter/voicelink/internal/discovery"
	"github.com/audiorouter/voicelink/internal/source"
	"github.com/audiorouter/voicelink/internal/ui"
	"github.com/audiorouter/voicelink/pkg/transport"
	"github.com/audiorouter/voicelink/pkg/voicelink"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	discoveryTimeout = 10 * time.Second
	statusInterval   = 500 * time.Millisecond
	runtimeInterval  = 2 * time.Second
)

func (a *app) newConnectCommand() *cobra.Command {
	var noTUI, discover bool

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join a room and stream audio both ways",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runConnect(ctx, !noTUI, discover)
		},
	}

	flags := cmd.Flags()
	flags.String("server", "", "Router websocket URL")
	flags.String("account", "", "Account id")
	flags.String("room", "", "Room id")
	flags.String("participant", "", "Participant id")
	flags.String("source", "", "Capture source: mic, tone, or an .mp3/.flac file")
	flags.String("output", "", "Playback backend: malgo or oto")
	flags.BoolVar(&noTUI, "no-tui", false, "Disable TUI, stream logs instead")
	flags.BoolVar(&discover, "discover", false, "Find a router via mDNS")

	_ = a.v.BindPFlag("server.url", flags.Lookup("server"))
	_ = a.v.BindPFlag("session.account", flags.Lookup("account"))
	_ = a.v.BindPFlag("session.room", flags.Lookup("room"))
	_ = a.v.BindPFlag("session.participant", flags.Lookup("participant"))
	_ = a.v.BindPFlag("audio.source", flags.Lookup("source"))
	_ = a.v.BindPFlag("audio.output", flags.Lookup("output"))

	return cmd
}

func (a *app) runConnect(ctx context.Context, useTUI, discover bool) error {
	settings := config.Load(a.v)

	closeLog, err := a.setupLogging(settings, !useTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	if discover {
		log.Info("Searching for a router via mDNS")
		findCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
		found, err := discovery.FindRouter(findCtx)
		cancel()
		if err != nil {
			return err
		}
		settings.ServerURL = found.URL()
		log.WithField("url", settings.ServerURL).Info("Discovered router")
	}

	if err := settings.Validate(true); err != nil {
		return err
	}

	client, err := voicelink.NewClient(settings.ClientConfig())
	if err != nil {
		return err
	}
	defer client.Close()

	devices, pump, err := openAudio(settings, client)
	if err != nil {
		return err
	}
	defer func() {
		for _, d := range devices {
			_ = d.Close()
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var prog *tea.Program
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		prog = ui.Run(controls)
		g.Go(func() error {
			defer cancel()
			_, err := prog.Run()
			return err
		})
	}
	updateTUI := func(msg ui.StatusMsg) {
		if prog != nil {
			prog.Send(msg)
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		if prog != nil {
			prog.Quit()
		}
		return client.Close()
	})

	fail := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	if err := client.Open(ctx); err != nil {
		return fail(err)
	}
	for _, d := range devices {
		if err := d.Start(); err != nil {
			return fail(err)
		}
	}

	updateTUI(ui.StatusMsg{
		ServerURL:   settings.ServerURL,
		Room:        settings.Room,
		Participant: settings.Participant,
	})
	log.WithFields(logrus.Fields{
		"url":         settings.ServerURL,
		"room":        settings.Room,
		"participant": settings.Participant,
		"source":      settings.Source,
		"output":      settings.Output,
	}).Info("Connecting")

	if pump != nil {
		g.Go(func() error { return pump(ctx) })
	}

	g.Go(func() error { return handleEvents(client, updateTUI) })

	g.Go(func() error {
		statusLoop(ctx, client, settings.Buffer.HoldOffMs, updateTUI)
		return nil
	})

	if controls != nil {
		g.Go(func() error {
			for {
				select {
				case enabled := <-controls.Mic:
					client.SetMicEnabled(enabled)
					updateTUI(ui.StatusMsg{MicEnabled: &enabled})
				case <-controls.Quit:
					cancel()
					return nil
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	err = g.Wait()
	log.Info("Disconnected")
	return err
}

// openAudio builds the playback device and whatever feeds the client's
// capture side. A non-nil pump must be run to feed file and tone sources.
func openAudio(settings config.Settings, client *voicelink.Client) ([]device.Device, func(context.Context) error, error) {
	rate := settings.CaptureRate
	mic := settings.Source == config.SourceMic

	var devices []device.Device
	switch settings.Output {
	case config.OutputOto:
		out, err := device.NewOto(device.Config{SampleRate: rate, FrameSize: settings.FrameSize, Playback: client.Read})
		if err != nil {
			return nil, nil, err
		}
		devices = append(devices, out)
		if mic {
			in, err := device.NewMalgo(device.Config{SampleRate: rate, FrameSize: settings.FrameSize, Capture: client.Write})
			if err != nil {
				return nil, nil, err
			}
			devices = append(devices, in)
		}
	default:
		cfg := device.Config{SampleRate: rate, FrameSize: settings.FrameSize, Playback: client.Read}
		if mic {
			cfg.Capture = client.Write
		}
		d, err := device.NewMalgo(cfg)
		if err != nil {
			return nil, nil, err
		}
		devices = append(devices, d)
	}

	if mic {
		return devices, nil, nil
	}

	reader, err := source.Open(settings.Source, rate)
	if err != nil {
		return nil, nil, err
	}
	pump := func(ctx context.Context) error {
		defer reader.Close()
		return source.Pump(ctx, reader, rate, settings.FrameSize, client.Write)
	}
	return devices, pump, nil
}

// handleEvents mirrors client events into the TUI until the client closes
func handleEvents(client *voicelink.Client, updateTUI func(ui.StatusMsg)) error {
	for e := range client.Events() {
		state := client.State()
		switch ev := e.(type) {
		case transport.Connected:
			connected := true
			updateTUI(ui.StatusMsg{Connected: &connected, State: &state, Event: "connected " + ev.ConnectionID})
		case transport.Disconnect:
			connected := false
			updateTUI(ui.StatusMsg{Connected: &connected, State: &state, Event: fmt.Sprintf("disconnected: %v", ev.Err)})
		case transport.Latency:
			updateTUI(ui.StatusMsg{RTT: ev.RTT})
		case transport.ReconnectExhausted:
			updateTUI(ui.StatusMsg{State: &state, Exhausted: true, Event: "reconnect attempts exhausted"})
		}
	}
	return nil
}

// statusLoop periodically pushes client and runtime statistics to the TUI
func statusLoop(ctx context.Context, client *voicelink.Client, holdOffMs int, updateTUI func(ui.StatusMsg)) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	// runtime stats are sampled less often to avoid GC pauses
	runtimeTicker := time.NewTicker(runtimeInterval)
	defer runtimeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-runtimeTicker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			updateTUI(ui.StatusMsg{
				Goroutines: runtime.NumGoroutine(),
				MemAlloc:   m.Alloc,
				MemSys:     m.Sys,
			})
		case <-ticker.C:
			stats := client.Stats()
			updateTUI(ui.StatusMsg{Stats: &ui.StatsUpdate{
				BufferDepth:    stats.BufferDepth,
				BufferMs:       stats.BufferMs,
				HoldOffMs:      holdOffMs,
				Buffer:         stats.Buffer,
				TxPackets:      stats.Transport.PacketsTx,
				RxPackets:      stats.Transport.PacketsRx,
				Dropped:        stats.Transport.Dropped,
				RateMismatches: stats.RateMismatches,
			}})
		}
	}
}
