package instrument

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"rocket-filter/internal/config"
)

// NewLogger builds the process logger. Pretty selects the console writer;
// otherwise one JSON object is written per line. A nil w writes to stdout.
func NewLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if cfg.Pretty {
		w = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
			cw.Out = w
		})
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
