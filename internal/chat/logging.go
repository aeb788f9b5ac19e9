package chat

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConfigureLogging points the global logger at out, or at a file when
// cfg.LogFile is set. The TUI owns the terminal, so without a log file its
// diagnostics are discarded. The returned closer releases the file.
func ConfigureLogging(cfg *Config, out io.Writer) (io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	var closer io.Closer = io.NopCloser(nil)
	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, err
		}
		out, closer = f, f
	case cfg.UseTUI:
		out = io.Discard
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor || cfg.LogFile != "",
		TimeFormat: time.TimeOnly,
	}).With().Timestamp().Logger()
	return closer, nil
}
