package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/egress/internal/domain/outbound"
)

type checkOptions struct {
	component string
	url       string
	scheme    string
	addr      string
	use       string
}

func newCheckCmd(cfg *cliConfig) *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check <manifest.yaml>",
		Short: "Check whether a component may reach a destination",
		Long: `Prepare an instance of the component and check a destination against its
outbound policy. Prints "allowed" or "denied".

  --url https://api.example.com          check a URL against allowed_outbound_hosts
  --url db:5432 --scheme postgres        check host:port with an explicit scheme
  --addr 10.0.0.5:443 --use tcp-connect  check a resolved socket address,
                                         including the runtime block-list`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, cfg, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.component, "component", "", "component id")
	cmd.Flags().StringVar(&opts.url, "url", "", "destination URL or host:port")
	cmd.Flags().StringVar(&opts.scheme, "scheme", "", "scheme for --url values without one")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "resolved socket address ip:port")
	cmd.Flags().StringVar(&opts.use, "use", outbound.TCPConnect.String(),
		"socket use: tcp-connect, tcp-bind, udp-connect, udp-bind, udp-outgoing-datagram")
	_ = cmd.MarkFlagRequired("component")
	cmd.MarkFlagsMutuallyExclusive("url", "addr")
	cmd.MarkFlagsOneRequired("url", "addr")

	return cmd
}

func runCheck(cmd *cobra.Command, cfg *cliConfig, opts *checkOptions, manifestPath string) error {
	var use outbound.SocketAddrUse
	if opts.addr != "" {
		var err error
		if use, err = outbound.ParseSocketAddrUse(opts.use); err != nil {
			return err
		}
	}

	ctr, err := cfg.newContainer(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = ctr.Close()
	}()

	ctx := cmd.Context()
	app, err := ctr.LoadApp(ctx, manifestPath)
	if err != nil {
		return err
	}
	instance, err := app.Outbound.Prepare(ctx, opts.component)
	if err != nil {
		return err
	}

	var allowed bool
	if opts.addr != "" {
		allowed = instance.CheckSocketAddr(ctx, opts.addr, use)
	} else if allowed, err = instance.CheckURL(ctx, opts.url, opts.scheme); err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	verdict := "denied"
	if allowed {
		verdict = "allowed"
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), verdict)
	return nil
}
