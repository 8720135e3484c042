package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quailyquaily/jab/internal/bot"
	"github.com/quailyquaily/jab/internal/fsstore"
	"github.com/quailyquaily/jab/internal/healthcheck"
	"github.com/quailyquaily/jab/internal/logutil"
	"github.com/quailyquaily/jab/internal/menu"
	"github.com/quailyquaily/jab/internal/observability"
	"github.com/quailyquaily/jab/internal/telegram"
	"github.com/quailyquaily/jab/internal/transport"
	"github.com/quailyquaily/jab/modules/archive"
)

const snapshotLockKey = "snapshot"

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			cfg, err := loadRunConfig(viper.GetViper())
			if err != nil {
				return err
			}
			if err := cfg.requireToken(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBot(ctx, cfg, logger)
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().String("transport", "polling", "Update transport: polling|webhook.")
	cmd.Flags().String("webhook-url", "", "Public HTTPS URL Telegram pushes updates to (webhook mode).")
	cmd.Flags().String("webhook-listen", ":8443", "Local listen address of the webhook receiver.")
	cmd.Flags().Bool("skip-missed-updates", true, "Discard the first batch after a start without a snapshot.")
	cmd.Flags().String("health-listen", "", "Address for /health and /metrics (empty disables).")

	_ = viper.BindPFlag("telegram.bot_token", cmd.Flags().Lookup("telegram-bot-token"))
	_ = viper.BindPFlag("transport.mode", cmd.Flags().Lookup("transport"))
	_ = viper.BindPFlag("transport.webhook.url", cmd.Flags().Lookup("webhook-url"))
	_ = viper.BindPFlag("transport.webhook.listen", cmd.Flags().Lookup("webhook-listen"))
	_ = viper.BindPFlag("bot.skip_missed_updates", cmd.Flags().Lookup("skip-missed-updates"))
	_ = viper.BindPFlag("health.listen", cmd.Flags().Lookup("health-listen"))

	return cmd
}

func runBot(ctx context.Context, cfg runConfig, logger *slog.Logger) error {
	gin.SetMode(gin.ReleaseMode)
	observability.RegisterMetrics()

	client := telegram.NewClient(nil, cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.RequestTimeout)
	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	logger.Info("telegram_identity", "bot_id", me.ID, "username", me.Username)

	tr, err := buildTransport(cfg, client, logger)
	if err != nil {
		return err
	}

	opts := cfg.Bot
	opts.Logger = logger
	b, err := bot.New(tr, client, bot.NewFileSnapshotStore(cfg.Paths.Snapshot), opts)
	if err != nil {
		return err
	}
	if err := registerModules(b, logger); err != nil {
		return err
	}

	applyMenuFile(ctx, client, cfg.Paths.Menu, logger)

	if cfg.HealthListen != "" {
		hs, err := healthcheck.Start(cfg.HealthListen, func() healthcheck.Status {
			return healthcheck.Status{
				Transport:    tr.Name(),
				LastUpdateID: b.HighWaterMark(),
				Modules:      b.Registry().Names(),
			}
		}, logger)
		if err != nil {
			return fmt.Errorf("health listener: %w", err)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hs.Close(closeCtx)
		}()
	}

	lockPath, err := fsstore.BuildLockPath(cfg.Paths.LockDir, snapshotLockKey)
	if err != nil {
		return err
	}
	lockCtx, cancel := context.WithTimeout(ctx, cfg.LockTimeout)
	defer cancel()
	err = fsstore.WithLock(lockCtx, lockPath, func() error {
		logger.Info("snapshot_lock_acquired", "path", lockPath, "snapshot", cfg.Paths.Snapshot)
		return b.Run(ctx)
	})
	if errors.Is(err, fsstore.ErrLockTimeout) || errors.Is(err, fsstore.ErrLockUnavailable) {
		return fmt.Errorf("another jab process holds %s: %w", lockPath, err)
	}
	return err
}

func buildTransport(cfg runConfig, client *telegram.Client, logger *slog.Logger) (transport.Transport, error) {
	switch cfg.Mode {
	case transport.ModeWebhook:
		opts := cfg.Webhook
		opts.Logger = logger
		wh, err := transport.NewWebhook(client, opts)
		if err != nil {
			return nil, fmt.Errorf("webhook transport: %w", err)
		}
		return wh, nil
	default:
		opts := cfg.Polling
		opts.Logger = logger
		p, err := transport.NewPolling(client, opts)
		if err != nil {
			return nil, fmt.Errorf("polling transport: %w", err)
		}
		return p, nil
	}
}

func registerModules(b *bot.Bot, logger *slog.Logger) error {
	return b.AddModule(archive.Name, archive.New(logger.With("module", archive.Name)))
}

// applyMenuFile pushes the command menu if the file exists. Failures only
// warn; the bot works without a menu.
func applyMenuFile(ctx context.Context, setter menu.Setter, path string, logger *slog.Logger) {
	m, ok, err := menu.Load(path)
	if err != nil {
		logger.Warn("menu_load_error", "path", path, "error", err.Error())
		return
	}
	if !ok {
		logger.Debug("menu_file_missing", "path", path)
		return
	}
	if err := menu.Apply(ctx, setter, m, logger); err != nil {
		logger.Warn("menu_apply_incomplete", "path", path, "error", err.Error())
	}
}
