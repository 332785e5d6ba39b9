package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

type runOptions struct {
	component string
	module    string
	export    string
	params    []int64
}

func newRunCmd(cfg *cliConfig) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <manifest.yaml>",
		Short: "Run a wasm guest under a component's outbound policy",
		Long: `Instantiate a wasm module as an instance of the component and call one of
its exports. Socket checks made through egress_host.socket_addr_check are
decided by the component's allow-list and the runtime block-list.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGuest(cmd, cfg, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.component, "component", "", "component id")
	cmd.Flags().StringVar(&opts.module, "module", "", "path to the wasm module")
	cmd.Flags().StringVar(&opts.export, "export", "_start", "exported function to call")
	cmd.Flags().Int64SliceVar(&opts.params, "param", nil, "i32/i64 arguments for the export")
	_ = cmd.MarkFlagRequired("component")
	_ = cmd.MarkFlagRequired("module")

	return cmd
}

func runGuest(cmd *cobra.Command, cfg *cliConfig, opts *runOptions, manifestPath string) error {
	wasmBytes, err := readModule(opts.module)
	if err != nil {
		return err
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

	rt, err := ctr.NewWasmRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = rt.Close(ctx)
	}()

	guest, err := rt.LoadGuest(ctx, opts.component, wasmBytes)
	if err != nil {
		return err
	}

	params := make([]uint64, len(opts.params))
	for i, p := range opts.params {
		params[i] = uint64(p) //nolint:gosec // raw wasm value bits
	}
	results, err := guest.Call(ctx, instance, opts.export, params...)
	if err != nil {
		return err
	}

	for _, r := range results {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), r)
	}
	return nil
}

func readModule(path string) ([]byte, error) {
	root, err := os.OpenRoot(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open module directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	data, err := root.ReadFile(filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read module: %w", err)
	}
	return data, nil
}
