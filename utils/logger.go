package utils

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/quillboard/quillboard/config"
)

var (
	// Logger is the global structured logger.
	Logger *zap.Logger
	// Sugar is its sugared form for printf-style call sites.
	Sugar *zap.SugaredLogger
)

// InitLogger builds the global zap logger: JSON to stdout, plus a rolling
// file via lumberjack when a log path is configured.
func InitLogger(cfg config.AppConfig) error {
	level := parseLevel(cfg.LogLevel)

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoder(func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
		}),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(os.Stdout), level),
	}

	if cfg.LogPath != "" {
		if dir := filepath.Dir(cfg.LogPath); dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		rolling := &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    orDefault(cfg.LogMaxSizeMB, 100),
			MaxBackups: orDefault(cfg.LogMaxBackups, 3),
			MaxAge:     orDefault(cfg.LogMaxAgeDays, 7),
			Compress:   cfg.LogCompress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rolling), level))
	}

	opts := []zap.Option{zap.AddCaller()}
	if level == zapcore.DebugLevel {
		opts = append(opts, zap.Development())
	}
	Logger = zap.New(zapcore.NewTee(cores...), opts...)
	Sugar = Logger.Sugar()
	return nil
}

func parseLevel(s string) zapcore.Level {
	if lvl, err := zapcore.ParseLevel(s); err == nil {
		return lvl
	}
	return zapcore.InfoLevel
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
