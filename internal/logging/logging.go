// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/verte-zerg/wlsplit/internal/model"
)

// Options selects where and how much to log.
type Options struct {
	Path   string
	Level  string
	Stderr bool
}

// ParseLevel maps a level name to a zerolog level. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("%w: invalid log level %q", model.ErrConfig, s)
	}
	return lvl, nil
}

// Init points the global logger at a rotating file, plus stderr when
// requested. The returned closer releases the log file.
func Init(opts Options) (io.Closer, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o750); err != nil {
		return nil, fmt.Errorf("%w: failed to create log dir: %w", model.ErrConfig, err)
	}

	file := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    1,
		MaxBackups: 2,
	}
	writers := []io.Writer{file}
	if opts.Stderr {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	}

	log.Logger = zerolog.New(io.MultiWriter(writers...)).
		Level(lvl).
		With().Timestamp().Logger()
	return file, nil
}
