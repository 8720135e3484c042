package main

import (
	"time"

	"github.com/spf13/viper"

	"github.com/quailyquaily/jab/internal/statepaths"
)

func initViperDefaults() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("trace", false)

	// Global
	v.SetDefault("file_state_dir", "~/.jab")
	v.SetDefault("snapshot.file", statepaths.DefaultSnapshotFilename)
	v.SetDefault("menu.file", statepaths.DefaultMenuFilename)
	v.SetDefault("health.listen", "")

	// Telegram
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.request_timeout", 30*time.Second)

	// Transport
	v.SetDefault("transport.mode", "polling")
	v.SetDefault("transport.allowed_updates", []string{})
	v.SetDefault("transport.startup_attempts", 5)
	v.SetDefault("transport.startup_retry_delay", 2*time.Second)
	v.SetDefault("transport.polling.timeout", 30*time.Second)
	v.SetDefault("transport.polling.limit", 100)
	v.SetDefault("transport.polling.drop_pending_updates", false)
	v.SetDefault("transport.webhook.url", "")
	v.SetDefault("transport.webhook.listen", ":8443")
	v.SetDefault("transport.webhook.path", "/")
	v.SetDefault("transport.webhook.ip_address", "")
	v.SetDefault("transport.webhook.max_connections", 0)
	v.SetDefault("transport.webhook.secret_token", "")
	v.SetDefault("transport.webhook.tls_cert", "")
	v.SetDefault("transport.webhook.tls_key", "")
	v.SetDefault("transport.webhook.upload_certificate", false)
	v.SetDefault("transport.webhook.reset", true)
	v.SetDefault("transport.webhook.drop_pending_updates", false)

	// Orchestrator
	v.SetDefault("bot.skip_missed_updates", true)
	v.SetDefault("bot.tick_interval", time.Second)
	v.SetDefault("bot.snapshot_interval", 5*time.Minute)
	v.SetDefault("bot.lock_timeout", 2*time.Second)
}
