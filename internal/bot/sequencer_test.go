package bot

import "testing"

func TestSequencerObserve(t *testing.T) {
	t.Parallel()

	s := NewSequencer(nil)
	steps := []struct {
		id   int64
		want Decision
		mark int64
	}{
		{id: 7, want: DecisionNext, mark: 7},
		{id: 8, want: DecisionNext, mark: 8},
		{id: 8, want: DecisionDuplicate, mark: 8},
		{id: 3, want: DecisionDuplicate, mark: 8},
		{id: 12, want: DecisionGap, mark: 12},
		{id: 13, want: DecisionNext, mark: 13},
	}
	for _, step := range steps {
		if got := s.Observe(step.id); got != step.want {
			t.Fatalf("Observe(%d) = %s, want %s", step.id, got, step.want)
		}
		if s.Mark() != step.mark {
			t.Fatalf("Mark() after %d = %d, want %d", step.id, s.Mark(), step.mark)
		}
	}
}

func TestSequencerFastForward(t *testing.T) {
	t.Parallel()

	s := NewSequencer(nil)
	if got := s.FastForward(commandUpdates(5, 9, 6)); got != 9 {
		t.Fatalf("FastForward() = %d, want 9", got)
	}
	if got := s.Observe(9); got != DecisionDuplicate {
		t.Fatalf("Observe(9) = %s, want duplicate", got)
	}
	if got := s.Observe(10); got != DecisionNext {
		t.Fatalf("Observe(10) = %s, want accepted", got)
	}
}

func TestSequencerRestoreClampsNegative(t *testing.T) {
	t.Parallel()

	s := NewSequencer(nil)
	s.Restore(-4)
	if s.Mark() != 0 {
		t.Fatalf("Mark() = %d, want 0", s.Mark())
	}
	if !s.Observe(1).Accepted() {
		t.Fatalf("Observe(1) not accepted after reset")
	}
}
