package utils

import "log/slog"

// Attribute keys shared by every package that logs through slog.
const (
	ErrorKey    = "error"
	URLKey      = "url"
	PathKey     = "path"
	VersionKey  = "version"
	AttemptKey  = "attempt"
	CountKey    = "count"
	TotalKey    = "total"
	RuntimeKey  = "runtime"
	DurationKey = "duration"
)

var logger = slog.Default()

func InitLogger(sl *slog.Logger) {
	logger = sl
}
