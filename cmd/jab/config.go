package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/quailyquaily/jab/internal/bot"
	"github.com/quailyquaily/jab/internal/statepaths"
	"github.com/quailyquaily/jab/internal/transport"
)

var errMissingToken = errors.New("missing telegram.bot_token (set via --telegram-bot-token or JAB_TELEGRAM_BOT_TOKEN)")

type telegramConfig struct {
	BotToken       string
	BaseURL        string
	RequestTimeout time.Duration
}

// runConfig is everything run needs, read from viper and checked before any
// component is built.
type runConfig struct {
	Telegram     telegramConfig
	Mode         transport.Mode
	Polling      transport.PollingOptions
	Webhook      transport.WebhookOptions
	Bot          bot.Options
	Paths        statepaths.Paths
	HealthListen string
	LockTimeout  time.Duration
}

func loadRunConfig(v *viper.Viper) (runConfig, error) {
	var cfg runConfig

	cfg.Telegram = telegramConfig{
		BotToken:       strings.TrimSpace(v.GetString("telegram.bot_token")),
		BaseURL:        strings.TrimSpace(v.GetString("telegram.base_url")),
		RequestTimeout: v.GetDuration("telegram.request_timeout"),
	}
	if cfg.Telegram.RequestTimeout <= 0 {
		return cfg, fmt.Errorf("telegram.request_timeout must be positive (got %s)", cfg.Telegram.RequestTimeout)
	}

	mode, err := transport.ParseMode(v.GetString("transport.mode"))
	if err != nil {
		return cfg, fmt.Errorf("transport.mode: %w", err)
	}
	cfg.Mode = mode

	allowed, err := transport.NormalizeAllowedUpdates(v.GetStringSlice("transport.allowed_updates"))
	if err != nil {
		return cfg, fmt.Errorf("transport.allowed_updates: %w", err)
	}
	attempts := v.GetInt("transport.startup_attempts")
	if attempts < 1 {
		return cfg, fmt.Errorf("transport.startup_attempts must be >= 1 (got %d)", attempts)
	}
	retryDelay := v.GetDuration("transport.startup_retry_delay")
	if retryDelay < 0 {
		return cfg, fmt.Errorf("transport.startup_retry_delay must not be negative (got %s)", retryDelay)
	}

	switch mode {
	case transport.ModePolling:
		cfg.Polling = transport.PollingOptions{
			AllowedUpdates:     allowed,
			Limit:              v.GetInt("transport.polling.limit"),
			Timeout:            v.GetDuration("transport.polling.timeout"),
			DropPendingUpdates: v.GetBool("transport.polling.drop_pending_updates"),
			StartupAttempts:    attempts,
			StartupRetryDelay:  retryDelay,
		}
		if cfg.Polling.Limit < 1 || cfg.Polling.Limit > 100 {
			return cfg, fmt.Errorf("transport.polling.limit must be 1-100 (got %d)", cfg.Polling.Limit)
		}
		if cfg.Polling.Timeout < 0 {
			return cfg, fmt.Errorf("transport.polling.timeout must not be negative (got %s)", cfg.Polling.Timeout)
		}
	case transport.ModeWebhook:
		cfg.Webhook = transport.WebhookOptions{
			URL:                 strings.TrimSpace(v.GetString("transport.webhook.url")),
			Listen:              strings.TrimSpace(v.GetString("transport.webhook.listen")),
			Path:                strings.TrimSpace(v.GetString("transport.webhook.path")),
			IPAddress:           strings.TrimSpace(v.GetString("transport.webhook.ip_address")),
			MaxConnections:      v.GetInt("transport.webhook.max_connections"),
			AllowedUpdates:      allowed,
			ResetBeforeRegister: v.GetBool("transport.webhook.reset"),
			DropPendingUpdates:  v.GetBool("transport.webhook.drop_pending_updates"),
			SecretToken:         strings.TrimSpace(v.GetString("transport.webhook.secret_token")),
			TLSCertFile:         strings.TrimSpace(v.GetString("transport.webhook.tls_cert")),
			TLSKeyFile:          strings.TrimSpace(v.GetString("transport.webhook.tls_key")),
			UploadCertificate:   v.GetBool("transport.webhook.upload_certificate"),
			StartupAttempts:     attempts,
			StartupRetryDelay:   retryDelay,
		}
		if cfg.Webhook.URL == "" {
			return cfg, errors.New("transport.webhook.url is required in webhook mode")
		}
	}

	cfg.Bot = bot.Options{
		SkipMissedUpdates: v.GetBool("bot.skip_missed_updates"),
		TickInterval:      v.GetDuration("bot.tick_interval"),
		SnapshotInterval:  v.GetDuration("bot.snapshot_interval"),
	}
	if cfg.Bot.TickInterval <= 0 {
		return cfg, fmt.Errorf("bot.tick_interval must be positive (got %s)", cfg.Bot.TickInterval)
	}
	if cfg.Bot.SnapshotInterval < 0 {
		return cfg, fmt.Errorf("bot.snapshot_interval must not be negative (got %s)", cfg.Bot.SnapshotInterval)
	}

	cfg.Paths = statepaths.FromViper(v)
	cfg.HealthListen = strings.TrimSpace(v.GetString("health.listen"))
	cfg.LockTimeout = v.GetDuration("bot.lock_timeout")
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 2 * time.Second
	}
	return cfg, nil
}

func (c runConfig) requireToken() error {
	if c.Telegram.BotToken == "" {
		return errMissingToken
	}
	return nil
}
