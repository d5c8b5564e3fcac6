// Package altolog constructs the zap loggers threaded through every
// subsystem constructor, the way the task engine threads a working
// directory and cache handle through its runner.
package altolog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide logger. verbose raises the level to debug;
// otherwise info and above reach stderr in a human-readable console
// encoding during interactive use, JSON when ALTO_LOG_FORMAT=json.
func New(verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if os.Getenv("ALTO_LOG_FORMAT") == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	return zap.New(core)
}

// Nop returns a logger that discards everything, for use in tests that
// don't assert on log output.
func Nop() *zap.Logger { return zap.NewNop() }
