package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. "production" gets JSON with ISO8601
// timestamps, anything else a colored console encoder.
func New(env, service string) *zap.Logger {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	log, err := config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return log.With(zap.String("service", service))
}

// Order returns the standard fields attached to every per-order log line.
func Order(accountID string, orderID int64) []zap.Field {
	return []zap.Field{
		zap.String("account_id", accountID),
		zap.Int64("order_id", orderID),
	}
}
