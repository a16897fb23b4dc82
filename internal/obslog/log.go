// Package obslog is the runtime's logging setup, adapted from the teacher's
// commonlib/log package: zap for structured logging, lumberjack for file
// rotation when a file output path is configured.
package obslog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures the process-wide logger.
type Config struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // file path, "stdout", or "stderr"
	AddCaller  bool   `mapstructure:"add_caller"`

	MaxSize    int  `mapstructure:"max_size"`    // MB, default 100
	MaxBackups int  `mapstructure:"max_backups"` // default 3
	MaxAge     int  `mapstructure:"max_age"`     // days, default 30
	Compress   bool `mapstructure:"compress"`
}

// DefaultConfig returns console-to-stdout logging at info level, the
// sensible default for local runs.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", OutputPath: "stdout", AddCaller: true}
}

// New builds a *zap.Logger from cfg. Every actor and the SPA server derive
// their own scoped logger from this one via .With(...).
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var output zapcore.WriteSyncer
	switch cfg.OutputPath {
	case "", "stdout":
		output = zapcore.AddSync(os.Stdout)
	case "stderr":
		output = zapcore.AddSync(os.Stderr)
	default:
		writer := &lumberjack.Logger{
			Filename:   cfg.OutputPath,
			MaxSize:    orDefault(cfg.MaxSize, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAge, 30),
			Compress:   cfg.Compress,
		}
		output = zapcore.AddSync(writer)
	}

	core := zapcore.NewCore(encoder, output, level)

	var opts []zap.Option
	if cfg.AddCaller {
		opts = append(opts, zap.AddCaller())
	}

	return zap.New(core, opts...), nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
