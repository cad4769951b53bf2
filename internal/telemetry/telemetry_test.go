package telemetry_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hearthgraph/substrate/internal/telemetry"
)

func TestChannelSink_FanOutToSubscribers(t *testing.T) {
	sink := telemetry.NewChannelSink(slog.Default())
	ch, unsubscribe := sink.Subscribe(4)
	defer unsubscribe()

	sink.Emit(telemetry.Event{Name: "write.denied", Fields: map[string]any{"scope": "s1"}})

	select {
	case e := <-ch:
		if e.Name != "write.denied" {
			t.Errorf("Name: want write.denied, got %q", e.Name)
		}
		if e.Fields["scope"] != "s1" {
			t.Errorf("Fields: want scope=s1, got %v", e.Fields)
		}
		if e.Timestamp.IsZero() {
			t.Error("Timestamp should be filled in by Emit")
		}
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestChannelSink_DropsWhenBufferFull(t *testing.T) {
	sink := telemetry.NewChannelSink(slog.Default())
	ch, unsubscribe := sink.Subscribe(1)
	defer unsubscribe()

	sink.Emit(telemetry.Event{Name: "first"})
	sink.Emit(telemetry.Event{Name: "second"})

	e := <-ch
	if e.Name != "first" {
		t.Errorf("want first event to survive, got %q", e.Name)
	}
	select {
	case extra := <-ch:
		t.Errorf("expected no second event, got %q", extra.Name)
	default:
	}
}

func TestChannelSink_UnsubscribeClosesChannel(t *testing.T) {
	sink := telemetry.NewChannelSink(slog.Default())
	ch, unsubscribe := sink.Subscribe(1)
	unsubscribe()

	_, ok := <-ch
	if ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}

func TestNoopSink_DoesNotPanic(t *testing.T) {
	var s telemetry.NoopSink
	s.Emit(telemetry.Event{Name: "anything"})
}

func TestHeartbeatWriter_AppendsJSONL(t *testing.T) {
	dir := t.TempDir()
	w, err := telemetry.NewHeartbeatWriter(dir)
	if err != nil {
		t.Fatalf("NewHeartbeatWriter: %v", err)
	}

	if err := w.Write(telemetry.HeartbeatRecord{CohortsUpdated: 1, ItemsReinforced: 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(telemetry.HeartbeatRecord{CohortsUpdated: 2, ItemsReinforced: 5}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "heartbeat.jsonl"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Errorf("want 2 lines, got %d", lines)
	}
}
