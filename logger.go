package auth

import "github.com/rs/zerolog"

type zerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger adapts a zerolog logger to Logger.
func NewZerologLogger(l zerolog.Logger) Logger {
	return zerologLogger{log: l.With().Str("component", "auth").Logger()}
}

func (z zerologLogger) Debug(format string, args ...any) {
	z.log.Debug().Msgf(format, args...)
}

func (z zerologLogger) Info(format string, args ...any) {
	z.log.Info().Msgf(format, args...)
}

func (z zerologLogger) Warn(format string, args ...any) {
	z.log.Warn().Msgf(format, args...)
}

func (z zerologLogger) Error(format string, args ...any) {
	z.log.Error().Msgf(format, args...)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger discards everything.
var NopLogger Logger = nopLogger{}
