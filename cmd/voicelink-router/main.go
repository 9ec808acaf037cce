// ABOUTME: Entry point for the standalone media router
// ABOUTME: Parses CLI flags and relays audio until interrupted
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiorouter/voicelink/internal/logging"
	"github.com/audiorouter/voicelink/pkg/router"
	"github.com/sirupsen/logrus"
)

var (
	port     = flag.Int("port", router.DefaultPort, "WebSocket server port")
	name     = flag.String("name", "", "Router friendly name (default: hostname-voicelink-router)")
	logFile  = flag.String("log-file", "voicelink-router.log", "Log file path")
	debug    = flag.Bool("debug", false, "Enable debug logging")
	noMDNS   = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	loopback = flag.Bool("loopback", false, "Echo packets back to their sender")
)

func main() {
	flag.Parse()

	closer, err := logging.Setup(logrus.StandardLogger(), logging.Options{
		File:    *logFile,
		Console: true,
		Debug:   *debug,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	routerName := *name
	if routerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		routerName = fmt.Sprintf("%s-voicelink-router", hostname)
	}

	logrus.WithFields(logrus.Fields{
		"name":     routerName,
		"port":     *port,
		"log_file": *logFile,
	}).Info("Starting voicelink router, press Ctrl-C to stop")

	srv := router.NewServer(router.Config{
		Port:       *port,
		Name:       routerName,
		Loopback:   *loopback,
		EnableMDNS: !*noMDNS,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logrus.WithField("signal", sig.String()).Info("Shutting down gracefully")
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		logrus.WithError(err).Error("Router error")
		closer.Close()
		os.Exit(1)
	}
}
