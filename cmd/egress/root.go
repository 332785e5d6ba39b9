package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reglet-dev/egress/internal/infrastructure/container"
)

// cliConfig holds settings shared by every command. Values come from flags,
// EGRESS_* environment variables, or the --config file, in that order.
type cliConfig struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "egress",
		Short: "Outbound networking policy for sandboxed components",
		Long: `egress loads an application manifest, resolves its variables through the
configured providers, and decides which outbound destinations each
component may reach.`,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return cfg.load()
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfg.cfgFile, "config", "", "CLI config file (default is $HOME/.egress.yaml)")
	cmd.PersistentFlags().String("runtime-config", "", "runtime config file (providers, blocked networks, redaction)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	_ = cfg.v.BindPFlag("runtime_config", cmd.PersistentFlags().Lookup("runtime-config"))
	_ = cfg.v.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))

	cmd.AddCommand(
		newValidateCmd(cfg),
		newCheckCmd(cfg),
		newResolveCmd(cfg),
		newRunCmd(cfg),
		newVersionCmd(),
	)
	return cmd
}

// load reads the config file and environment.
func (c *cliConfig) load() error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		c.v.AddConfigPath(home)
		c.v.SetConfigType("yaml")
		c.v.SetConfigName(".egress")
	}

	c.v.SetEnvPrefix("EGRESS")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		// Only an explicitly named file has to exist.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || c.cfgFile != "" { //nolint:errorlint // viper returns the value type unwrapped
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}
	slog.Debug("using config file", "file", c.v.ConfigFileUsed())
	return nil
}

// newContainer wires dependencies for one command invocation and installs
// the container's redacting logger as the default.
func (c *cliConfig) newContainer(cmd *cobra.Command) (*container.Container, error) {
	level := slog.LevelInfo
	if c.v.GetBool("verbose") {
		level = slog.LevelDebug
	}

	ctr, err := container.New(container.Options{
		RuntimeConfigPath: c.v.GetString("runtime_config"),
		LogOutput:         cmd.ErrOrStderr(),
		LogLevel:          level,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(ctr.Logger())
	return ctr, nil
}
