package common

import (
	"log/slog"
	"testing"
	"time"
)

func TestSinkCapturesBoundedHistory(t *testing.T) {
	s := newLogSink(3)
	for i := 0; i < 5; i++ {
		record := slog.NewRecord(time.Now(), slog.LevelInfo, "entry", 0)
		s.capture(record)
	}
	got := s.entries()
	if len(got) != 3 {
		t.Fatalf("history length = %d, want 3", len(got))
	}
	for _, entry := range got {
		if entry.Level != "info" || entry.Message != "entry" {
			t.Fatalf("unexpected entry: %+v", entry)
		}
		if entry.Time.Location() != time.UTC {
			t.Fatalf("entry time must be UTC, got %v", entry.Time.Location())
		}
	}
}

func TestLoggerFeedsEntries(t *testing.T) {
	Logger().Info("captured for the health endpoint")
	entries := LogEntries()
	if len(entries) == 0 {
		t.Fatal("expected at least one captured entry")
	}
	last := entries[len(entries)-1]
	if last.Message != "captured for the health endpoint" {
		t.Fatalf("last message = %q", last.Message)
	}
}
