package profiles

import (
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging installs a TextHandler on stdout as the default logger. PROFILES_LOG_LEVEL
// (DEBUG, INFO, WARN or ERROR, any case) sets the level, Info when unset or not recognized.
func ConfigureLogging() {
	level := slog.LevelInfo
	if v := os.Getenv("PROFILES_LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			level = slog.LevelInfo
		}
	}
	logLevel.Set(level)

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel changes the level of the logger installed by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}
