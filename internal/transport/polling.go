package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quailyquaily/jab/internal/logutil"
	"github.com/quailyquaily/jab/internal/observability"
	"github.com/quailyquaily/jab/internal/retryutil"
	"github.com/quailyquaily/jab/internal/telegram"
)

const (
	defaultPollTimeout = 30 * time.Second
	defaultPollLimit   = 100
	maxPollLimit       = 100
)

// PollingAPI is the subset of the Bot API the polling transport needs.
type PollingAPI interface {
	DeleteWebhook(ctx context.Context, req telegram.DeleteWebhookRequest) error
	GetUpdates(ctx context.Context, req telegram.GetUpdatesRequest) ([]telegram.Update, error)
}

type PollingOptions struct {
	AllowedUpdates     []string
	Limit              int
	Timeout            time.Duration
	DropPendingUpdates bool
	StartupAttempts    int
	StartupRetryDelay  time.Duration
	Logger             *slog.Logger
}

func (o PollingOptions) normalized() (PollingOptions, error) {
	if o.Limit <= 0 {
		o.Limit = defaultPollLimit
	}
	if o.Limit > maxPollLimit {
		return o, fmt.Errorf("polling limit %d out of range 1-%d", o.Limit, maxPollLimit)
	}
	if o.Timeout < 0 {
		o.Timeout = defaultPollTimeout
	}
	allowed, err := NormalizeAllowedUpdates(o.AllowedUpdates)
	if err != nil {
		return o, err
	}
	o.AllowedUpdates = allowed
	o.Logger = logutil.OrDiscard(o.Logger)
	return o, nil
}

// Polling long-polls getUpdates. It tracks its own offset so that every
// returned update is acknowledged upstream by the next call.
type Polling struct {
	api     PollingAPI
	opts    PollingOptions
	offset  int64
	started bool
}

func NewPolling(api PollingAPI, opts PollingOptions) (*Polling, error) {
	if api == nil {
		return nil, fmt.Errorf("polling transport: nil api")
	}
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	if opts.Timeout == 0 {
		opts.Logger.Warn("telegram_short_polling", "hint", "timeout=0 issues short polls; use for testing only")
	}
	return &Polling{api: api, opts: opts}, nil
}

func (p *Polling) Name() string { return string(ModePolling) }

// OnStartup removes any webhook registration; getUpdates is refused while one exists.
func (p *Polling) OnStartup(ctx context.Context) error {
	if p.started {
		return nil
	}
	err := retryutil.Do(ctx, p.opts.Logger, "telegram_delete_webhook", p.opts.StartupAttempts, p.opts.StartupRetryDelay, func(ctx context.Context) error {
		err := p.api.DeleteWebhook(ctx, telegram.DeleteWebhookRequest{DropPendingUpdates: p.opts.DropPendingUpdates})
		if err != nil && telegram.IsPermanent(err) {
			return &retryutil.Permanent{Err: err}
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("polling startup: %w", err)
	}
	p.started = true
	p.opts.Logger.Info("telegram_polling_started",
		"timeout", p.opts.Timeout.String(),
		"limit", p.opts.Limit,
		"allowed_updates", p.opts.AllowedUpdates,
	)
	return nil
}

func (p *Polling) FetchUpdates(ctx context.Context) ([]telegram.Update, error) {
	if !p.started {
		return nil, ErrNotStarted
	}
	updates, err := p.api.GetUpdates(ctx, telegram.GetUpdatesRequest{
		Offset:         p.offset,
		Limit:          p.opts.Limit,
		Timeout:        int(p.opts.Timeout / time.Second),
		AllowedUpdates: p.opts.AllowedUpdates,
	})
	observability.RecordFetch(p.Name(), len(updates), err)
	if err != nil {
		return nil, err
	}
	for _, u := range updates {
		if u.UpdateID >= p.offset {
			p.offset = u.UpdateID + 1
		}
	}
	return updates, nil
}

// Resume starts polling after mark so acknowledged updates are not requested again.
func (p *Polling) Resume(mark int64) {
	if mark > 0 && mark+1 > p.offset {
		p.offset = mark + 1
	}
}

func (p *Polling) Offset() int64 { return p.offset }

func (p *Polling) Close(context.Context) error { return nil }
