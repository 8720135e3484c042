package bot

import (
	"log/slog"
	"sync/atomic"

	"github.com/quailyquaily/jab/internal/logutil"
	"github.com/quailyquaily/jab/internal/observability"
	"github.com/quailyquaily/jab/internal/telegram"
)

// Decision is how the Sequencer classified an update id.
type Decision int

const (
	// DecisionNext is the expected next id (or the first id seen).
	DecisionNext Decision = iota
	// DecisionGap skipped one or more ids; the update is still accepted.
	DecisionGap
	// DecisionDuplicate is at or below the mark and must not be dispatched.
	DecisionDuplicate
)

// Accepted reports whether the update should be dispatched.
func (d Decision) Accepted() bool { return d != DecisionDuplicate }

// String is the metric label for d.
func (d Decision) String() string {
	switch d {
	case DecisionNext:
		return "accepted"
	case DecisionGap:
		return "gap"
	case DecisionDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Sequencer owns the high-water mark: the highest update id accepted so far,
// 0 meaning none. Only the loop goroutine advances it; Mark may be read from
// anywhere.
type Sequencer struct {
	mark   atomic.Int64
	logger *slog.Logger
}

func NewSequencer(logger *slog.Logger) *Sequencer {
	return &Sequencer{logger: logutil.OrDiscard(logger)}
}

func (s *Sequencer) Mark() int64 { return s.mark.Load() }

// Restore sets the mark from a snapshot.
func (s *Sequencer) Restore(mark int64) {
	if mark < 0 {
		mark = 0
	}
	s.mark.Store(mark)
	observability.SetHighWaterMark(mark)
}

// Observe classifies id and advances the mark for accepted ids. Gaps are
// logged at error level; upstream never redelivers skipped ids, so the mark
// moves past them.
func (s *Sequencer) Observe(id int64) Decision {
	mark := s.mark.Load()
	decision := DecisionNext
	switch {
	case mark != 0 && id <= mark:
		decision = DecisionDuplicate
	case mark != 0 && id > mark+1:
		s.logger.Error("update_gap_detected",
			"last_update_id", mark,
			"update_id", id,
			"missed", id-mark-1,
		)
		mark = id
		decision = DecisionGap
	default:
		mark = id
	}
	s.mark.Store(mark)
	observability.RecordSequencer(decision.String(), mark)
	return decision
}

// FastForward moves the mark to the highest id in updates without accepting
// any of them. It returns the new mark.
func (s *Sequencer) FastForward(updates []telegram.Update) int64 {
	mark := s.mark.Load()
	for _, u := range updates {
		if u.UpdateID > mark {
			mark = u.UpdateID
		}
		observability.RecordSequencer("skipped", mark)
	}
	s.mark.Store(mark)
	return mark
}
