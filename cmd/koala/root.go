package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/koala/pkg/config"
)

// runFlags holds the command-line overrides of the run command.
type runFlags struct {
	configPath  string
	url         string
	headless    bool
	metricsAddr string
	logLevel    string
}

// newRootCmd constructs the command tree. The exit code requested by the
// controlling process is stored in code.
func newRootCmd(code *int) *cobra.Command {
	root := &cobra.Command{
		Use:           "koala",
		Short:         "Embedded browser runtime controlled over stdio",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(code), newConfigCmd(), newVersionCmd())
	return root
}

func newRunCmd(code *int) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Start the browser and serve the channel protocol on stdin/stdout",
		Example: "  koala run --config koala.yaml --url https://example.com",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			c, err := run(cmd.Context(), cfg, flags.url)
			*code = c
			return err
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "Path to configuration file (.yaml, .toml or .json)")
	cmd.Flags().StringVar(&flags.url, "url", "", "Open a frame at this address on start")
	cmd.Flags().BoolVar(&flags.headless, "headless", true, "Run the browser without a window")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug|info|warn|error|off")
	return cmd
}

// loadConfig reads the configuration file, if any, and applies the flags
// that were set explicitly.
func loadConfig(cmd *cobra.Command, flags *runFlags) (config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("headless") {
		cfg.Headless = &flags.headless
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = flags.metricsAddr
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("config requires a subcommand: init")
		},
	}

	initCmd := &cobra.Command{
		Use:     "init <path>",
		Short:   "Write a configuration file holding the defaults",
		Example: "  koala config init ~/.koala/koala.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(args[0], config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(initCmd)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "koala v%s\n", version)
		},
	}
}
