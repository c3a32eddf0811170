package logging

import (
	"context"

	"github.com/MarkoPoloResearchLab/giftgrove/pkg/gifting"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const operationLogMessage = "gifting operation"

// ZapOperationLogger writes gifting operation records as structured zap entries.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger returns an OperationLogger backed by logger. A nil logger discards records.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger}
}

// LogOperation implements gifting.OperationLogger.
func (operationLogger *ZapOperationLogger) LogOperation(_ context.Context, entry gifting.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.RequestID.IsZero() {
		fields = append(fields, zap.String("request_id", entry.RequestID.String()))
	}
	if !entry.Actor.IsZero() {
		fields = append(fields, zap.String("actor", entry.Actor.String()))
	}
	if entry.Count != 0 {
		fields = append(fields, zap.Int("count", entry.Count))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	level := zapcore.InfoLevel
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		level = zapcore.WarnLevel
	}
	if checked := operationLogger.logger.Check(level, operationLogMessage); checked != nil {
		checked.Write(fields...)
	}
}
