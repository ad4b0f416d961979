// Package logging points the standard logger at stderr and, when a log
// directory is configured, a size-rotated file.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup configures the global logger for program. Close the returned value on
// exit to flush the log file.
func Setup(conf config.LogConfig, program string) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var closer io.Closer = nopCloser{}
	out := io.Writer(os.Stderr)
	if conf.Dir != "" {
		w := &lumberjack.Logger{
			Filename:   filepath.Join(conf.Dir, program+".log"),
			MaxSize:    conf.MaxSizeMB, // MB
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, w)
		closer = w
	}
	log.SetOutput(out)

	version := "unknown"
	if bi, ok := debug.ReadBuildInfo(); ok {
		version = bi.Main.Version
	}
	log.Printf("%s %s starting (%s/%s, %s)", program, version, runtime.GOOS, runtime.GOARCH, runtime.Version())

	return closer
}
