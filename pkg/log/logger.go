// Package log sets up the structured slog logger used by the pipeline and
// provides attribute helpers for numerical-experiment logging.
package log

import (
	"fmt"
	"log/slog"
	"os"
)

// Setup installs the default JSON slog logger at the given level. Errors
// created through pkg/errors are emitted with a stacktrace attribute.
func Setup(loglevel string) {
	ops := slog.HandlerOptions{
		Level: ToLogLevel(loglevel),
	}
	handler := slog.NewJSONHandler(os.Stderr, &ops)
	slog.SetDefault(slog.New(WrapByErrFmtHandler(handler)))
}

// ToLogLevel converts a level name to a slog.Level.
func ToLogLevel(level string) slog.Level {
	switch level {
	case "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		panic(fmt.Sprintf("invalid log level :%s", level))
	}
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

// Standard attribute keys for experiment logging.
const (
	RunIDKey     = "run.id"
	OperationKey = "ml.operation"
	SamplesKey   = "data.samples"
	FeaturesKey  = "data.features"
	TargetsKey   = "data.targets"
	ModelKey     = "model.variant"
	LawKey       = "physics.law"
	DurationKey  = "perf.duration_seconds"
	EpochKey     = "train.epoch"
	LossKey      = "train.loss"
)
