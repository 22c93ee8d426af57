// Package logging builds the process zap logger.
package logging

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"

	EncodingJSON    = "json"
	EncodingConsole = "console"
)

// EncoderConfig is shared by every encoder New builds.
func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		LevelKey:       "level",
		TimeKey:        "timestamp",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// ParseLevel maps LOG_LEVEL values onto zap levels. Unknown values fall back to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case LevelDebug, "TRACE":
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New returns a logger writing to stdout.
func New(level, encoding string) (*zap.Logger, error) {
	sink, _, err := zap.Open("stdout")
	if err != nil {
		return nil, err
	}
	errSink, _, err := zap.Open("stderr")
	if err != nil {
		return nil, err
	}
	return NewWithSink(level, encoding, sink, zap.ErrorOutput(errSink)), nil
}

// NewWithSink builds the logger over an arbitrary sink.
func NewWithSink(level, encoding string, sink zapcore.WriteSyncer, opts ...zap.Option) *zap.Logger {
	encoder := zapcore.NewJSONEncoder(EncoderConfig())
	if strings.EqualFold(encoding, EncodingConsole) {
		encoder = zapcore.NewConsoleEncoder(EncoderConfig())
	}
	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(ParseLevel(level)))
	opts = append([]zap.Option{
		zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewSamplerWithOptions(core, time.Second, 1000, 15)
		}),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}, opts...)
	return zap.New(core, opts...)
}
