// ABOUTME: Cobra command tree for the voicelink binary
// ABOUTME: Root flags, config initialisation and Execute
package commands

import (
	"fmt"
	"os"

	"github.com/audiorouter/voicelink/internal/config"
	"github.com/audiorouter/voicelink/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app is the state shared by all commands of one invocation
type app struct {
	v          *viper.Viper
	configFile string
}

// NewRootCommand builds the command tree around v
func NewRootCommand(v *viper.Viper) *cobra.Command {
	a := &app{v: v}

	root := &cobra.Command{
		Use:           "voicelink",
		Short:         "Real-time voice over a media router with adaptive playout",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Init(a.v, a.configFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", config.DefaultFile(), "config file")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log-file", "", "Log file path (default from config)")

	_ = v.BindPFlag("debug", flags.Lookup("debug"))
	_ = v.BindPFlag("log.file", flags.Lookup("log-file"))

	root.AddCommand(
		a.newConnectCommand(),
		a.newRouterCommand(),
		a.newConfigCommand(),
		newVersionCommand(),
	)
	return root
}

// setupLogging points the process logger at the configured file
func (a *app) setupLogging(settings config.Settings, console bool) (func(), error) {
	closer, err := logging.Setup(logrus.StandardLogger(), logging.Options{
		File:    settings.LogFile,
		Console: console,
		Debug:   settings.Debug,
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = closer.Close() }, nil
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	if err := NewRootCommand(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
