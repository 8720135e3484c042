package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/quailyquaily/jab/internal/telegram"
	"github.com/quailyquaily/jab/internal/transport"
)

func runUntilDrained(t *testing.T, b *Bot, tr *scriptedTransport) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.drained = cancel

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run() did not return after transport drained")
	}
}

func TestRunSkipsMissedUpdatesOnColdStart(t *testing.T) {
	t.Parallel()

	tr := &scriptedTransport{batches: [][]telegram.Update{
		commandUpdates(5, 6, 9),
		commandUpdates(10),
	}}
	store := &memoryStore{}
	b := newTestBot(t, tr, store, Options{SkipMissedUpdates: true, TickInterval: time.Millisecond})
	m := &countingModule{}
	_ = b.AddModule("counter", m)

	runUntilDrained(t, b, tr)

	if n, _ := m.seen(); n != 1 {
		t.Fatalf("module executed %d times, want 1", n)
	}
	if b.HighWaterMark() != 10 {
		t.Fatalf("HighWaterMark() = %d, want 10", b.HighWaterMark())
	}
	if store.saves != 1 {
		t.Fatalf("snapshot saves = %d, want 1 on shutdown", store.saves)
	}
}

func TestRunDropsDuplicatesAndAcceptsGaps(t *testing.T) {
	t.Parallel()

	seed := newTestBot(t, nil, nil, Options{})
	seed.seq.Restore(10)
	data, err := seed.Save()
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	tr := &scriptedTransport{batches: [][]telegram.Update{
		commandUpdates(9, 10, 11, 15),
	}}
	b := newTestBot(t, tr, &memoryStore{data: data}, Options{SkipMissedUpdates: true, TickInterval: time.Millisecond})
	m := &countingModule{}
	_ = b.AddModule("counter", m)

	runUntilDrained(t, b, tr)

	if n, _ := m.seen(); n != 2 {
		t.Fatalf("module executed %d times, want 2", n)
	}
	if b.HighWaterMark() != 15 {
		t.Fatalf("HighWaterMark() = %d, want 15", b.HighWaterMark())
	}
	if tr.resumed != 10 {
		t.Fatalf("transport resumed at %d, want 10", tr.resumed)
	}
}

func TestRunBuiltinDeleteBypassesModules(t *testing.T) {
	t.Parallel()

	del := commandUpdate(1, "/del")
	del.Message.Entities = []telegram.MessageEntity{{Type: telegram.EntityBotCommand, Offset: 0, Length: 4}}
	del.Message.ReplyTo = &telegram.Message{MessageID: 77, Chat: &telegram.Chat{ID: 42}}
	orphan := commandUpdate(2, "/del")

	tr := &scriptedTransport{batches: [][]telegram.Update{{del, orphan, commandUpdate(3, "hello")}}}
	comm := &fakeCommunicator{}
	b, err := New(tr, comm, nil, Options{TickInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	m := &countingModule{}
	_ = b.AddModule("counter", m)

	runUntilDrained(t, b, tr)

	deleted := comm.deletedMessages()
	if len(deleted) != 1 || deleted[0] != (deletedMessage{chatID: 42, messageID: 77}) {
		t.Fatalf("deleted = %+v", deleted)
	}
	if n, names := m.seen(); n != 1 || names[0] != "hello" {
		t.Fatalf("module saw %d commands %v, want only hello", n, names)
	}
}

func TestRunIgnoresNonCommandUpdates(t *testing.T) {
	t.Parallel()

	tr := &scriptedTransport{batches: [][]telegram.Update{{
		{UpdateID: 1, CallbackQuery: &telegram.CallbackQuery{ID: "q"}},
		{UpdateID: 2, EditedMessage: &telegram.Message{Text: "edited"}},
		{UpdateID: 3, Message: &telegram.Message{Text: "   "}},
	}}}
	b := newTestBot(t, tr, nil, Options{TickInterval: time.Millisecond})
	m := &countingModule{}
	_ = b.AddModule("counter", m)

	runUntilDrained(t, b, tr)

	if n, _ := m.seen(); n != 0 {
		t.Fatalf("module executed %d times, want 0", n)
	}
	if b.HighWaterMark() != 3 {
		t.Fatalf("HighWaterMark() = %d, want 3", b.HighWaterMark())
	}
}

func TestRunContinuesAfterFetchError(t *testing.T) {
	t.Parallel()

	tr := &scriptedTransport{
		errs:    []error{errors.New("network down")},
		batches: [][]telegram.Update{commandUpdates(1)},
	}
	b := newTestBot(t, tr, nil, Options{TickInterval: time.Millisecond})
	m := &countingModule{}
	_ = b.AddModule("counter", m)

	runUntilDrained(t, b, tr)

	if n, _ := m.seen(); n != 1 {
		t.Fatalf("module executed %d times, want 1", n)
	}
	if tr.closeCalls != 1 {
		t.Fatalf("transport closed %d times, want 1", tr.closeCalls)
	}
}

func TestRunFailsWhenStartupFails(t *testing.T) {
	t.Parallel()

	tr := &scriptedTransport{startErr: errors.New("unauthorized")}
	b := newTestBot(t, tr, nil, Options{})
	err := b.Run(context.Background())
	if err == nil {
		t.Fatalf("Run() error = nil, want startup error")
	}
	if tr.closeCalls != 1 {
		t.Fatalf("transport closed %d times, want 1", tr.closeCalls)
	}
}

func TestRunStopsWhenListenerStops(t *testing.T) {
	t.Parallel()

	tr := &scriptedTransport{errs: []error{fmt.Errorf("webhook: %w", transport.ErrListenerStopped)}}
	store := &memoryStore{}
	b := newTestBot(t, tr, store, Options{TickInterval: time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, transport.ErrListenerStopped) {
			t.Fatalf("Run() error = %v, want ErrListenerStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() kept retrying after the listener stopped")
	}
	if store.saves != 1 {
		t.Fatalf("snapshot saves = %d, want 1", store.saves)
	}
	if tr.closeCalls != 1 {
		t.Fatalf("transport closed %d times, want 1", tr.closeCalls)
	}
}

func TestRunSavesPeriodically(t *testing.T) {
	t.Parallel()

	tr := &scriptedTransport{batches: [][]telegram.Update{commandUpdates(1), commandUpdates(2)}}
	store := &memoryStore{}
	b := newTestBot(t, tr, store, Options{TickInterval: time.Millisecond, SnapshotInterval: time.Minute})
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	runUntilDrained(t, b, tr)

	// one save per batch plus the shutdown save
	if store.saves != 3 {
		t.Fatalf("snapshot saves = %d, want 3", store.saves)
	}
	snap, err := DecodeSnapshot(store.data)
	if err != nil {
		t.Fatalf("DecodeSnapshot() error = %v", err)
	}
	if snap.HighWaterMark != 2 {
		t.Fatalf("snapshot mark = %d, want 2", snap.HighWaterMark)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeCommunicator{}, nil, Options{}); err == nil {
		t.Fatalf("New(nil transport) error = nil")
	}
	if _, err := New(&scriptedTransport{}, &fakeCommunicator{}, nil, Options{TickInterval: -1}); err == nil {
		t.Fatalf("New(negative tick) error = nil")
	}
	b, err := New(&scriptedTransport{}, &fakeCommunicator{}, nil, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if b.opts.TickInterval != DefaultTickInterval {
		t.Fatalf("TickInterval = %s, want default", b.opts.TickInterval)
	}
}

func TestHandleBatchDispatchesInOrderAndLogsGapOnce(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	b := newTestBot(t, nil, nil, Options{Logger: logger})
	mod := &countingModule{}
	if err := b.AddModule("recorder", mod); err != nil {
		t.Fatalf("AddModule() error = %v", err)
	}
	b.seq.Restore(10)

	b.HandleBatch(context.Background(), commandUpdates(11, 15, 15, 3))

	// commandUpdate uses update id * 10 as the message id.
	got := mod.messageIDs()
	if len(got) != 2 || got[0] != 110 || got[1] != 150 {
		t.Fatalf("dispatched message ids = %v, want [110 150]", got)
	}
	if b.HighWaterMark() != 15 {
		t.Fatalf("HighWaterMark() = %d, want 15", b.HighWaterMark())
	}

	gaps := 0
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("json.Unmarshal(%q) error = %v", line, err)
		}
		if rec["msg"] != "update_gap_detected" {
			continue
		}
		gaps++
		if rec["level"] != "ERROR" || rec["update_id"] != float64(15) || rec["missed"] != float64(4) {
			t.Fatalf("gap record = %v", rec)
		}
	}
	if gaps != 1 {
		t.Fatalf("update_gap_detected records = %d, want 1\n%s", gaps, logs.String())
	}
}
