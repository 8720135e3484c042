package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quailyquaily/jab/internal/logutil"
	"github.com/quailyquaily/jab/internal/observability"
	"github.com/quailyquaily/jab/internal/telegram"
	"github.com/quailyquaily/jab/internal/transport"
)

const (
	DefaultTickInterval = time.Second
	defaultCloseTimeout = 5 * time.Second
)

type Options struct {
	// SkipMissedUpdates discards the first batch after a cold start (no
	// snapshot mark) instead of dispatching it.
	SkipMissedUpdates bool
	// TickInterval is the minimum spacing between loop iterations that
	// dispatched a batch or hit a fetch error.
	TickInterval time.Duration
	// SnapshotInterval enables periodic saves; 0 saves only on shutdown.
	SnapshotInterval time.Duration
	Logger           *slog.Logger
}

// Bot is the orchestrator. It is driven by a single goroutine in Run.
type Bot struct {
	transport transport.Transport
	comm      Communicator
	store     SnapshotStore
	registry  *Registry
	seq       *Sequencer
	builtins  map[string]BuiltinFunc
	opts      Options
	logger    *slog.Logger

	now      func() time.Time
	lastSave time.Time
}

func New(tr transport.Transport, comm Communicator, store SnapshotStore, opts Options) (*Bot, error) {
	if tr == nil {
		return nil, errors.New("bot: transport is required")
	}
	if comm == nil {
		return nil, errors.New("bot: communicator is required")
	}
	if opts.TickInterval < 0 || opts.SnapshotInterval < 0 {
		return nil, fmt.Errorf("bot: intervals must not be negative (tick=%s snapshot=%s)", opts.TickInterval, opts.SnapshotInterval)
	}
	if opts.TickInterval == 0 {
		opts.TickInterval = DefaultTickInterval
	}
	logger := logutil.OrDiscard(opts.Logger)
	return &Bot{
		transport: tr,
		comm:      comm,
		store:     store,
		registry:  NewRegistry(logger),
		seq:       NewSequencer(logger),
		builtins:  defaultBuiltins(),
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// AddModule registers m under name. It must be called before Run.
func (b *Bot) AddModule(name string, m Module) error {
	return b.registry.Register(name, m)
}

func (b *Bot) Registry() *Registry { return b.registry }

func (b *Bot) HighWaterMark() int64 { return b.seq.Mark() }

// Run loads the snapshot, performs the transport handshake and processes
// updates until ctx is cancelled. On cancellation the batch in progress is
// finished, the snapshot is saved and Run returns nil. A failed handshake is
// returned as an error, as is a transport whose listener has stopped (after
// the snapshot is saved).
func (b *Bot) Run(ctx context.Context) error {
	b.loadSnapshot()
	if r, ok := b.transport.(transport.Resumer); ok && b.seq.Mark() > 0 {
		r.Resume(b.seq.Mark())
	}
	if err := b.transport.OnStartup(ctx); err != nil {
		b.closeTransport()
		return fmt.Errorf("%s startup: %w", b.transport.Name(), err)
	}
	b.lastSave = b.now()
	b.logger.Info("bot_started",
		"transport", b.transport.Name(),
		"modules", strings.Join(b.registry.Names(), ","),
		"last_update_id", b.seq.Mark(),
		"skip_missed_updates", b.opts.SkipMissedUpdates,
	)

	// Dispatch must not be cut short by shutdown.
	dispatchCtx := context.WithoutCancel(ctx)
	ticker := time.NewTicker(b.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return nil
		default:
		}

		updates, err := b.transport.FetchUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if errors.Is(err, transport.ErrListenerStopped) {
				b.logger.Error("transport_stopped", "transport", b.transport.Name(), "error", err.Error())
				b.shutdown()
				return err
			}
			if telegram.IsPollTimeoutError(err) {
				b.logger.Debug("fetch_updates_timeout", "transport", b.transport.Name())
			} else {
				b.logger.Warn("fetch_updates_error", "transport", b.transport.Name(), "error", err.Error())
			}
			b.wait(ctx, ticker)
			continue
		}
		if len(updates) == 0 {
			continue
		}

		b.HandleBatch(dispatchCtx, updates)
		b.maybeSnapshot()
		b.wait(ctx, ticker)
	}
}

// HandleBatch sequences and dispatches one batch in order.
func (b *Bot) HandleBatch(ctx context.Context, updates []telegram.Update) {
	if b.opts.SkipMissedUpdates && b.seq.Mark() == 0 {
		mark := b.seq.FastForward(updates)
		b.logger.Info("updates_skipped_on_cold_start", "count", len(updates), "last_update_id", mark)
		return
	}
	for _, u := range updates {
		decision := b.seq.Observe(u.UpdateID)
		if !decision.Accepted() {
			b.logger.Debug("update_duplicate", "update_id", u.UpdateID, "last_update_id", b.seq.Mark())
			continue
		}
		b.handleUpdate(ctx, u)
	}
}

func (b *Bot) handleUpdate(ctx context.Context, u telegram.Update) {
	msg := u.CommandMessage()
	if msg == nil {
		b.logger.Debug("update_ignored", "update_id", u.UpdateID, "kind", u.Kind())
		return
	}
	cmd, ok := ParseCommand(msg)
	if !ok {
		return
	}
	if builtin, ok := b.builtins[cmd.Name]; ok {
		err := builtin(ctx, b.comm, cmd, msg)
		observability.RecordBuiltin(cmd.Name, err)
		if err != nil {
			b.logger.Warn("builtin_command_error", "command", cmd.Name, "chat_id", msg.ChatID(), "error", err.Error())
		}
		return
	}
	b.registry.Dispatch(ctx, b.comm, cmd, msg)
}

func (b *Bot) maybeSnapshot() {
	if b.opts.SnapshotInterval <= 0 {
		return
	}
	if b.now().Sub(b.lastSave) >= b.opts.SnapshotInterval {
		b.saveSnapshot()
	}
}

func (b *Bot) wait(ctx context.Context, ticker *time.Ticker) {
	select {
	case <-ctx.Done():
	case <-ticker.C:
	}
}

func (b *Bot) shutdown() {
	b.logger.Info("bot_stopping", "last_update_id", b.seq.Mark())
	b.saveSnapshot()
	b.closeTransport()
	b.logger.Info("bot_stopped")
}

func (b *Bot) closeTransport() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCloseTimeout)
	defer cancel()
	if err := b.transport.Close(ctx); err != nil {
		b.logger.Warn("transport_close_error", "transport", b.transport.Name(), "error", err.Error())
	}
}
