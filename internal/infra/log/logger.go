package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New создаёт логгер сервиса. В dev-окружении включается уровень debug.
func New(appEnv, service string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "dev" {
		level = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()
}
