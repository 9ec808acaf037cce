// ABOUTME: router command
// ABOUTME: Runs the media router until interrupted
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiorouter/voicelink/internal/config"
	"github.com/audiorouter/voicelink/pkg/router"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("component", "commands")

func (a *app) newRouterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "router",
		Short: "Run a local media router",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runRouter(ctx)
		},
	}

	flags := cmd.Flags()
	flags.Int("port", router.DefaultPort, "Listening port")
	flags.Bool("loopback", false, "Echo packets back to their sender")
	flags.Bool("mdns", true, "Advertise the router via mDNS")
	flags.String("name", "", "mDNS service name (default: hostname-voicelink-router)")

	_ = a.v.BindPFlag("router.port", flags.Lookup("port"))
	_ = a.v.BindPFlag("router.loopback", flags.Lookup("loopback"))
	_ = a.v.BindPFlag("router.mdns", flags.Lookup("mdns"))
	_ = a.v.BindPFlag("router.name", flags.Lookup("name"))

	return cmd
}

func (a *app) runRouter(ctx context.Context) error {
	settings := config.Load(a.v)
	closeLog, err := a.setupLogging(settings, true)
	if err != nil {
		return err
	}
	defer closeLog()

	name := a.v.GetString("router.name")
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		name = fmt.Sprintf("%s-voicelink-router", hostname)
	}

	srv := router.NewServer(router.Config{
		Port:       settings.RouterPort,
		Name:       name,
		Loopback:   settings.RouterLoopback,
		EnableMDNS: settings.RouterMDNS,
	})

	log.WithFields(logrus.Fields{
		"name": name,
		"port": settings.RouterPort,
	}).Info("Starting router, press Ctrl-C to stop")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		srv.Stop()
		return nil
	})
	return g.Wait()
}
