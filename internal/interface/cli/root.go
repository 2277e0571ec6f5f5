package cli

import (
	"context"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/gatechain/internal/app"
	"github.com/YoshitsuguKoike/gatechain/internal/app/config"
	"github.com/YoshitsuguKoike/gatechain/internal/di"
	infraConfig "github.com/YoshitsuguKoike/gatechain/internal/infra/config"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

// globalConfig holds the loaded configuration for all commands
var globalConfig config.Config

// osFs is the filesystem every command works against
var osFs afero.Fs = afero.NewOsFs()

type rootFlags struct {
	home     string
	logLevel string
}

func NewRoot() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "gatechain",
		Short:         "Prompt chains with quality gates and shell verification",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Priority: --home > GATECHAIN_HOME > .gatechain
			home := flags.home
			if home == "" {
				home = app.ResolvePaths().Home
			}

			cfg, err := infraConfig.LoadSettings(osFs, home)
			if err != nil {
				return err
			}
			globalConfig = cfg
			app.ConfigureLogger(cfg, flags.logLevel, cmd.ErrOrStderr())
			logging.GetLogger().Debugw("configuration loaded",
				"home", cfg.Home(), "source", cfg.ConfigSource(), "path", cfg.SettingPath())
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.PersistentFlags().StringVar(&flags.home, "home", "", "gatechain home directory (default $"+app.HomeEnv+" or "+app.DefaultHome+")")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newExecCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newVerifyHookCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	if err := NewRoot().Execute(); err != nil {
		logging.GetLogger().Errorw("command failed", "error", err)
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		return 1
	}
	return 0
}

// newContainer wires the process dependencies from the loaded configuration
func newContainer(ctx context.Context, runtimeMetrics bool) (*di.Container, error) {
	return di.NewContainer(ctx, di.Config{
		App:            globalConfig,
		Fs:             osFs,
		Logger:         logging.GetLogger(),
		RuntimeMetrics: runtimeMetrics,
	})
}
