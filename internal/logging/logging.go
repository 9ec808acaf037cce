// ABOUTME: Process-wide logrus setup
// ABOUTME: Log file output, optional console mirroring and level selection
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options controls where and how much the process logs
type Options struct {
	// File receives all log output; empty disables file logging
	File string

	// Console mirrors output to stdout. Turned off while the TUI owns
	// the terminal.
	Console bool

	Debug bool
}

// Setup configures the standard logrus logger. The returned closer releases
// the log file.
func Setup(logger *logrus.Logger, opts Options) (io.Closer, error) {
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})

	if opts.Debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			return nil, fmt.Errorf("error opening log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}
	if opts.Console {
		writers = append(writers, os.Stdout)
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
