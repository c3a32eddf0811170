package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/giftgrove/pkg/gifting"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapOperationLoggerWritesFields(test *testing.T) {
	test.Parallel()
	core, recorded := observer.New(zapcore.InfoLevel)
	operationLogger := NewZapOperationLogger(zap.New(core))
	requestID, _ := gifting.NewRequestID("req-1")
	actor, _ := gifting.NewStaffID("alice")

	operationLogger.LogOperation(context.Background(), gifting.OperationLog{
		Operation: "reserve",
		RequestID: requestID,
		Actor:     actor,
		Count:     3,
		Detail:    "deficit=2",
		Status:    "deficit",
	})

	entries := recorded.All()
	if len(entries) != 1 {
		test.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["operation"] != "reserve" || fields["request_id"] != "req-1" || fields["actor"] != "alice" || fields["count"] != int64(3) {
		test.Fatalf("unexpected fields: %+v", fields)
	}
	if entries[0].Level != zapcore.InfoLevel {
		test.Fatalf("expected info level, got %s", entries[0].Level)
	}
}

func TestZapOperationLoggerWarnsOnError(test *testing.T) {
	test.Parallel()
	core, recorded := observer.New(zapcore.InfoLevel)
	operationLogger := NewZapOperationLogger(zap.New(core))

	operationLogger.LogOperation(context.Background(), gifting.OperationLog{
		Operation: "pick",
		Status:    "error",
		Error:     errors.New("already claimed"),
	})

	entries := recorded.All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		test.Fatalf("expected one warn entry, got %+v", entries)
	}
	fields := entries[0].ContextMap()
	if fields["error"] != "already claimed" {
		test.Fatalf("expected error field, got %+v", fields)
	}
	if _, ok := fields["request_id"]; ok {
		test.Fatalf("expected empty request id to be omitted")
	}
}

func TestNilLoggerDiscards(test *testing.T) {
	test.Parallel()
	NewZapOperationLogger(nil).LogOperation(context.Background(), gifting.OperationLog{Operation: "create"})
}
