package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"
)

// newLogger builds the process logger. format is json or console; an unknown
// level falls back to info.
func newLogger(level, format, output string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	var config zap.Config
	if format == "console" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	if output != "" {
		config.OutputPaths = []string{output}
	}

	return config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

// protocolWriter turns raw protocol traffic into debug log lines.
func protocolWriter(log *zap.Logger) *zapio.Writer {
	return &zapio.Writer{Log: log.Named("protocol"), Level: zapcore.DebugLevel}
}
