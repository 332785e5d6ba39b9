package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	apperrors "github.com/reglet-dev/egress/internal/application/errors"
)

func newValidateCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest.yaml>",
		Short: "Check a manifest and that every variable has a value",
		Long: `Load the manifest and runtime config, check allowed_outbound_hosts syntax,
and verify that every declared variable resolves. Variables that can only
be answered by a dynamic provider (vault, etcd, redis) are not checked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctr, err := cfg.newContainer(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = ctr.Close()
			}()

			ctx := cmd.Context()
			app, err := ctr.LoadApp(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := ctr.Validate(ctx, app); err != nil {
				var missing *apperrors.MissingVariablesError
				if errors.As(err, &missing) {
					for _, k := range missing.Keys {
						_, _ = fmt.Fprintf(out, "missing: %s\n", k)
					}
				}
				return err
			}

			_, _ = fmt.Fprintf(out, "ok: %d component(s), %d variable(s)\n",
				len(app.Application.Components), len(app.Application.Variables))
			return nil
		},
	}
}
