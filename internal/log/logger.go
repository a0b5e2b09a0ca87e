package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the API logger. Production writes JSON lines at info level,
// other environments get the console writer at debug level.
func New(environment string) zerolog.Logger {
	production := environment == "production"

	level := zerolog.DebugLevel
	if production {
		level = zerolog.InfoLevel
	}

	return build(writer(production), "api", level).With().
		Str("env", environment).
		Logger()
}

func writer(structured bool) io.Writer {
	if structured {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
}

func build(out io.Writer, component string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(out).Level(level).With().
		Timestamp().
		Str("component", component).
		Logger()
}
