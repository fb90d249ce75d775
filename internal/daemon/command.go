package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/loganszeto/sharedstate/internal/config"
	"github.com/loganszeto/sharedstate/internal/loggingutil"
)

// NewCommand returns the root command of a server binary.
func NewCommand(svc Service, baseLogger pslog.Logger) *cobra.Command {
	baseLogger = loggingutil.EnsureLogger(baseLogger)
	v := viper.New()
	cmd := &cobra.Command{
		Use:           svc.Name,
		Short:         svc.Short,
		SilenceErrors: true,
		Example: fmt.Sprintf(`
  # listen on all interfaces and require a token
  %[1]s --listen 0.0.0.0:%[2]s --token s3cret

  # expose the websocket gateway and metrics on one port
  %[1]s --ws-listen 127.0.0.1:8080 --metrics-listen 127.0.0.1:8080

  # settings from the environment
  SHAREDSTATE_MAX_LINE=64KiB SHAREDSTATE_LOG_LEVEL=debug %[1]s
`, svc.Name, port(svc.Defaults.Listen)),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			cliLogger := loggingutil.WithSubsystem(baseLogger, "cli.root")

			path, err := config.LoadFile(v)
			if err != nil {
				return err
			}
			if path != "" {
				cliLogger.Info("loaded config file", "path", path)
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			logger, ok := loggingutil.ApplyLevel(baseLogger, cfg.LogLevel)
			if !ok {
				cliLogger.Warn("unknown log level, keeping default", "level", cfg.LogLevel)
			}
			logger.Info("starting",
				"pid", os.Getpid(),
				"listen", cfg.Listen,
				"max_line", cfg.MaxLine,
				"token", cfg.Token != "",
			)

			d, err := New(svc, cfg, logger)
			if err != nil {
				return err
			}
			return d.Run(cmd.Context())
		},
	}
	config.RegisterFlags(cmd.Flags(), svc.Defaults)
	if err := config.Bind(v, cmd.Flags()); err != nil {
		panic(err)
	}
	cmd.AddCommand(newConfigCommand(svc))
	return cmd
}

func newConfigCommand(svc Service) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage " + svc.Name + " configuration files",
	}
	cmd.AddCommand(newConfigGenCommand(svc))
	return cmd
}

func newConfigGenCommand(svc Service) *cobra.Command {
	var (
		outPath string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a configuration file holding the defaults",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.DefaultYAML(svc.Defaults)
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", outPath)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat config file: %w", err)
				}
			}
			if err := os.WriteFile(outPath, data, 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output path (defaults to stdout)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	return cmd
}

func port(addr string) string {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		return p
	}
	return addr
}
