// Package logging provides logger construction for CLI components.
//
// Components receive a *log.Logger via their Config structs. The CLI
// writes diagnostic output to a rotating log file under the state
// directory so that interactive output stays clean; verbose mode tees
// to stderr as well.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	// Dir is the directory for the rotating log file.
	Dir string

	// Verbose additionally mirrors log output to stderr.
	Verbose bool

	// Quiet discards all log output. Used by tests and --quiet.
	Quiet bool
}

// New returns a component logger with the given prefix.
//
// Log files rotate at 5 MB with 3 backups kept, so a long-running
// watch session cannot grow the state directory without bound.
func New(prefix string, opts Options) *log.Logger {
	if opts.Quiet {
		return log.New(io.Discard, prefix, 0)
	}

	var writers []io.Writer
	if opts.Dir != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "codeverse.log"),
			MaxSize:    5, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		})
	}
	if opts.Verbose || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	return log.New(io.MultiWriter(writers...), prefix, log.LstdFlags)
}
