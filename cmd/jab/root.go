package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Environment overrides look like JAB_TELEGRAM_BOT_TOKEN.
const envPrefix = "JAB"

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "jab",
		Short:        "Modular Telegram bot: polls or receives updates and fans commands out to modules",
		SilenceUsage: true,
	}
	cobra.OnInitialize(initConfig)

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Config file (yaml, toml or json).")
	flags.String("log-level", "", "debug|info|warn|error (info by default, debug with --trace).")
	flags.String("log-format", "text", "text|json.")
	flags.Bool("log-add-source", false, "Add file:line to log records.")
	flags.Bool("trace", false, "Verbose diagnostics on stderr.")
	flags.String("file-state-dir", "", "Directory holding the snapshot, menu file and locks (default ~/.jab).")
	for flag, key := range map[string]string{
		"config":         "config",
		"log-level":      "logging.level",
		"log-format":     "logging.format",
		"log-add-source": "logging.add_source",
		"trace":          "trace",
		"file-state-dir": "file_state_dir",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}

	cmd.AddCommand(newRunCmd(), newMenuCmd(), newVersionCmd())
	return cmd
}

func initConfig() {
	initViperDefaults()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if path := strings.TrimSpace(viper.GetString("config")); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jab: read config %s: %v\n", path, err)
		}
	}
}
