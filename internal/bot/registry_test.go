package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quailyquaily/jab/internal/telegram"
)

func TestRegistryRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	first := &countingModule{}
	if err := r.Register("archive", first); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	err := r.Register("archive", &countingModule{})
	if !errors.Is(err, ErrDuplicateModule) {
		t.Fatalf("Register() duplicate error = %v, want ErrDuplicateModule", err)
	}
	got, _ := r.Get("archive")
	if got != Module(first) {
		t.Fatalf("Get() returned replacement module")
	}
	if err := r.Register(" ", &countingModule{}); !errors.Is(err, ErrInvalidModule) {
		t.Fatalf("Register() blank error = %v, want ErrInvalidModule", err)
	}
	if names := r.Names(); len(names) != 1 || names[0] != "archive" {
		t.Fatalf("Names() = %v", names)
	}
}

func TestRegistryDispatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	ok := &countingModule{}
	failing := &countingModule{err: errors.New("boom")}
	panicking := &countingModule{panicMsg: "kaboom"}
	for name, m := range map[string]Module{"a_ok": ok, "b_fail": failing, "c_panic": panicking} {
		if err := r.Register(name, m); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	msg := &telegram.Message{MessageID: 1, Chat: &telegram.Chat{ID: 5}, Text: "ping"}
	failed := r.Dispatch(context.Background(), &fakeCommunicator{}, Command{Name: "ping"}, msg)
	if len(failed) != 2 {
		t.Fatalf("Dispatch() failures = %d, want 2", len(failed))
	}
	if failed[0].Module != "b_fail" || failed[1].Module != "c_panic" {
		t.Fatalf("Dispatch() failures = %v, %v", failed[0], failed[1])
	}
	if !strings.Contains(failed[1].Error(), "kaboom") {
		t.Fatalf("panic error = %q", failed[1].Error())
	}
	for name, m := range map[string]*countingModule{"a_ok": ok, "b_fail": failing, "c_panic": panicking} {
		if n, _ := m.seen(); n != 1 {
			t.Fatalf("%s executed %d times, want 1", name, n)
		}
	}
}
