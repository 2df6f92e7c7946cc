package setup

import (
	"fmt"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/setup/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLoggers builds the main and database loggers from the debug
// configuration. The database logger stays at warn level unless query
// logging is enabled, keeping routine upsert chatter out of the output.
func NewLoggers(debug *config.Debug) (*zap.Logger, *zap.Logger, error) {
	level, err := zapcore.ParseLevel(debug.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", debug.LogLevel, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	dbLevel := zapcore.WarnLevel
	if debug.QueryLogging {
		dbLevel = zapcore.DebugLevel
	}

	dbCfg := zap.NewProductionConfig()
	dbCfg.Level = zap.NewAtomicLevelAt(dbLevel)
	dbCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	dbLogger, err := dbCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build database logger: %w", err)
	}

	return logger.Named("spamhunter"), dbLogger.Named("db"), nil
}
