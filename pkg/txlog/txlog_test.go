package txlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, rotation RotationConfig) (*FileLogger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "journal.log")
	logger, err := NewFileLogger(logPath, rotation)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, logPath
}

func TestEvent_New(t *testing.T) {
	event := NewEvent("alice", OpCommit)

	if event.User != "alice" {
		t.Errorf("User = %q, want %q", event.User, "alice")
	}
	if event.Operation != OpCommit {
		t.Errorf("Operation = %q, want %q", event.Operation, OpCommit)
	}
	if len(event.ID) != 36 {
		t.Errorf("ID = %q, want a UUID", event.ID)
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if other := NewEvent("alice", OpCommit); other.ID == event.ID {
		t.Error("IDs should be unique")
	}
}

func TestEvent_Chaining(t *testing.T) {
	event := NewEvent("alice", OpAudit).
		WithController("C1").
		WithSession("tx-1", 3, 4).
		WithAffected([]string{"C1"}).
		WithFailed([]string{"vtn1|vbr1"}).
		WithResult(nil).
		WithDuration(time.Second)

	if event.Controller != "C1" {
		t.Errorf("Controller = %q", event.Controller)
	}
	if event.TxID != "tx-1" || event.SessionID != 3 || event.ConfigID != 4 {
		t.Errorf("session = %q/%d/%d", event.TxID, event.SessionID, event.ConfigID)
	}
	if len(event.Affected) != 1 || len(event.Failed) != 1 {
		t.Errorf("Affected = %v, Failed = %v", event.Affected, event.Failed)
	}
	if !event.Success {
		t.Error("Success should be true")
	}
	if event.Duration != time.Second {
		t.Errorf("Duration = %v", event.Duration)
	}

	event.WithResult(errors.New("controller C1 rejected request"))
	if event.Success {
		t.Error("Success should be false")
	}
	if event.Error != "controller C1 rejected request" {
		t.Errorf("Error = %q", event.Error)
	}
}

func TestFileLogger_Basic(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})

	event := NewEvent("alice", OpCommit).WithAffected([]string{"C1", "C2"}).WithResult(nil)
	if err := logger.Log(event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].ID != event.ID {
		t.Errorf("ID = %q, want %q", events[0].ID, event.ID)
	}
	if len(events[0].Affected) != 2 {
		t.Errorf("Affected = %v", events[0].Affected)
	}
}

func TestFileLogger_QueryFilters(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})

	events := []*Event{
		NewEvent("alice", OpCommit).WithAffected([]string{"C1"}).WithResult(nil),
		NewEvent("bob", OpAudit).WithController("C2").WithResult(errors.New("disconnected")),
		NewEvent("alice", OpAudit).WithController("C1").WithResult(nil),
		NewEvent("bob", OpSave).WithResult(nil),
	}
	for _, e := range events {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"by user", Filter{User: "alice"}, 2},
		{"by operation", Filter{Operation: OpAudit}, 2},
		{"by controller", Filter{Controller: "C1"}, 2},
		{"success only", Filter{SuccessOnly: true}, 3},
		{"failure only", Filter{FailureOnly: true}, 1},
		{"limit", Filter{Limit: 3}, 3},
		{"offset", Filter{Offset: 3}, 1},
		{"offset beyond", Filter{Offset: 10}, 0},
		{"future", Filter{StartTime: time.Now().Add(time.Hour)}, 0},
		{"past", Filter{EndTime: time.Now().Add(-time.Hour)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := logger.Query(tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestFileLogger_QueryMalformedJSON(t *testing.T) {
	logger, logPath := newTestLogger(t, RotationConfig{})
	if err := logger.Log(NewEvent("alice", OpCommit)); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.WriteString("not json\n")
	f.Close()

	if err := logger.Log(NewEvent("bob", OpAbort)); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("Expected 2 valid events, got %d", len(events))
	}
}

func TestFileLogger_QueryNonExistent(t *testing.T) {
	logger, logPath := newTestLogger(t, RotationConfig{})
	os.Remove(logPath)

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected no events, got %d", len(events))
	}
}

func TestFileLogger_RotationWithCleanup(t *testing.T) {
	logger, logPath := newTestLogger(t, RotationConfig{
		MaxSize:    50,
		MaxBackups: 2,
	})

	for i := 0; i < 10; i++ {
		if err := logger.Log(NewEvent("alice", OpCommit)); err != nil {
			t.Fatalf("Log failed on iteration %d: %v", i, err)
		}
	}

	matches, err := filepath.Glob(logPath + ".*")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) == 0 {
		t.Error("Expected rotation to create backup files")
	}
	if len(matches) > 2 {
		t.Errorf("Expected at most 2 backup files, got %d", len(matches))
	}
}

func TestFileLogger_NewFileLoggerMkdirError(t *testing.T) {
	_, err := NewFileLogger("/dev/null/impossible/journal.log", RotationConfig{})
	if err == nil {
		t.Error("Expected error creating journal under /dev/null")
	}
}

func TestFileLogger_CloseTwice(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	if err := l.Log(NewEvent("alice", OpCommit)); err != nil {
		t.Errorf("Log = %v", err)
	}
	events, err := l.Query(Filter{})
	if err != nil || len(events) != 0 {
		t.Errorf("Query = %v, %v", events, err)
	}
}
