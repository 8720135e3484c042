package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set through -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line := "jab " + version
			if commit != "" {
				line += " (" + commit
				if date != "" {
					line += ", " + date
				}
				line += ")"
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), line)
			return err
		},
	}
}
