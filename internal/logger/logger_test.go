package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetAndNamed(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	prev := Get()
	Set(zap.New(core))
	t.Cleanup(func() { Set(prev) })

	Named("elevation").Info("Cell opened", zap.String("file", "n37.dt1"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].LoggerName != "elevation" {
		t.Errorf("logger name = %q, want elevation", entries[0].LoggerName)
	}
	if entries[0].ContextMap()["file"] != "n37.dt1" {
		t.Errorf("fields = %v", entries[0].ContextMap())
	}
}

func TestGetNeverNil(t *testing.T) {
	prev := Get()
	Set(nil)
	t.Cleanup(func() { Set(prev) })

	if Get() == nil {
		t.Fatal("Get() returned nil")
	}
	Sync()
}
