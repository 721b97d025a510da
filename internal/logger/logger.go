package logger

import (
	"log/slog"
	"os"

	slogotel "github.com/remychantenay/slog-otel"
)

var LogLevel = new(slog.LevelVar)

var jsonHandler = slog.NewJSONHandler(
	os.Stdout,
	&slog.HandlerOptions{AddSource: true, Level: LogLevel},
)
var sloghandler = slogotel.NewOtelHandler(slogotel.WithNoTraceEvents(true))
var Handler = sloghandler(jsonHandler)
var Logger = slog.New(Handler)

func InitSlog() {
	slog.SetDefault(Logger)
	LogLevel.Set(slog.LevelDebug)
}

// SetLevel applies a configured level, e.g. logging.app.level.
func SetLevel(level int) {
	LogLevel.Set(slog.Level(level))
}

// Component returns a logger tagged with the subsystem that writes through it.
func Component(name string) *slog.Logger {
	return Logger.With(slog.String("component", name))
}
