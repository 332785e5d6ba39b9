package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/egress/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of egress",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "egress version %s\n", version.Get().Full())
		},
	}
}
