package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dhernos/vestri-auth/internal/config"
)

// New builds the process logger: JSON to stdout and, when cfg.File is set,
// to a size-rotated file. The returned cleanup flushes and closes the file.
func New(cfg config.LogConfig) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}
	cleanup := func() {}

	if cfg.File != "" {
		maxSize := int64(cfg.MaxSizeMB) * 1024 * 1024
		if maxSize <= 0 {
			maxSize = 50 * 1024 * 1024
		}
		fw, err := NewRotatingFileWriter(cfg.File, maxSize, cfg.MaxBackups)
		if err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		sinks = append(sinks, fw)
		cleanup = func() { _ = fw.Close() }
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return logger, func() {
		_ = logger.Sync()
		cleanup()
	}, nil
}
