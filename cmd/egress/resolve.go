package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type resolveOptions struct {
	component   string
	variable    string
	template    string
	showSecrets bool
}

func newResolveCmd(cfg *cliConfig) *cobra.Command {
	opts := &resolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve <manifest.yaml>",
		Short: "Resolve a component variable or a template",
		Long: `Resolve a component variable (--component with --variable) or an arbitrary
template over application variables (--template). Secret values are
redacted unless --show-secrets is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.template == "" && (opts.component == "" || opts.variable == "") {
				return fmt.Errorf("either --template or both --component and --variable are required")
			}

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

			var value string
			if opts.template != "" {
				value, err = app.Resolver.ResolveTemplate(ctx, opts.template)
			} else {
				value, err = app.Resolver.ResolveComponentVariable(ctx, opts.component, opts.variable)
			}
			if err != nil {
				return err
			}

			if !opts.showSecrets {
				value = ctr.Redactor().ScrubString(value)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.component, "component", "", "component id")
	cmd.Flags().StringVar(&opts.variable, "variable", "", "component variable name")
	cmd.Flags().StringVar(&opts.template, "template", "", "template to resolve, e.g. \"https://{{ api_host }}\"")
	cmd.Flags().BoolVar(&opts.showSecrets, "show-secrets", false, "print secret values in clear text")
	cmd.MarkFlagsMutuallyExclusive("template", "variable")

	return cmd
}
