package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quailyquaily/jab/internal/clifmt"
	"github.com/quailyquaily/jab/internal/logutil"
	"github.com/quailyquaily/jab/internal/menu"
	"github.com/quailyquaily/jab/internal/telegram"
)

func newMenuCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Inspect or publish the bot command menu",
	}
	cmd.PersistentFlags().String("file", "", "Menu YAML file (defaults to menu.file under the state dir).")
	_ = viper.BindPFlag("menu.file", cmd.PersistentFlags().Lookup("file"))

	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Validate the menu file and print it grouped by scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, path, err := loadMenuFile()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", path)
			printMenu(cmd.OutOrStdout(), m)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "apply",
		Short: "Push the menu to Telegram with setMyCommands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			cfg, err := loadRunConfig(viper.GetViper())
			if err != nil {
				return err
			}
			if err := cfg.requireToken(); err != nil {
				return err
			}
			m, _, err := loadMenuFile()
			if err != nil {
				return err
			}
			client := telegram.NewClient(nil, cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.RequestTimeout)
			if err := menu.Apply(cmd.Context(), client, m, logger); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "applied %d scope(s)\n", len(m.Groups()))
			return nil
		},
	})
	return cmd
}

func loadMenuFile() (menu.Menu, string, error) {
	cfg, err := loadRunConfig(viper.GetViper())
	if err != nil {
		return menu.Menu{}, "", err
	}
	path := cfg.Paths.Menu
	m, ok, err := menu.Load(path)
	if err != nil {
		return menu.Menu{}, path, err
	}
	if !ok {
		return menu.Menu{}, path, fmt.Errorf("menu file %s not found", path)
	}
	return m, path, nil
}

func printMenu(w io.Writer, m menu.Menu) {
	groups := m.Groups()
	if len(groups) == 0 {
		clifmt.Table{EmptyText: "No commands."}.Render(w)
		return
	}
	for i, g := range groups {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		scope := g.Scope.Type
		if g.Scope.ChatID != 0 {
			scope += fmt.Sprintf(" chat_id=%d", g.Scope.ChatID)
		}
		if g.Scope.UserID != 0 {
			scope += fmt.Sprintf(" user_id=%d", g.Scope.UserID)
		}
		rows := make([]clifmt.Row, 0, len(g.Commands))
		for _, c := range g.Commands {
			rows = append(rows, clifmt.Row{Key: "/" + c.Command, Detail: c.Description})
		}
		clifmt.Table{
			Title:   scope,
			Headers: [2]string{"COMMAND", "DESCRIPTION"},
			Rows:    rows,
		}.Render(w)
	}
}
