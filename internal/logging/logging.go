package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the process logger: JSON on stdout, or a console writer when
// env is "dev". Unknown levels fall back to info.
func New(env, level string) zerolog.Logger {
	return newWithWriter(os.Stdout, env, level)
}

func newWithWriter(out io.Writer, env, level string) zerolog.Logger {
	if env == "dev" {
		out = zerolog.ConsoleWriter{Out: out}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
