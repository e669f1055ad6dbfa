package main

import (
	"os"
	"sync"

	"github.com/spf13/cobra"

	"scour/internal/app"
	"scour/internal/auth"
	"scour/internal/config"
	"scour/internal/logging"
)

type commandContext struct {
	storeFlag    string
	logLevelFlag string

	once sync.Once
	cfg  config.Config
	app  *app.App
	err  error
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "scourctl",
		Short:         "Run and inspect scour jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&ctx.storeFlag, "store", "", "Storage backend (postgres or memory); overrides STORE")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "", "Log level; overrides LOG_LEVEL")

	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newWorkerCommand(ctx))
	rootCmd.AddCommand(newTrendsCommand(ctx))
	rootCmd.AddCommand(newSourcesCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	return rootCmd
}

// config loads settings from the environment; flags given to scourctl take
// precedence over the matching variables.
func (c *commandContext) config() (config.Config, error) {
	if c.storeFlag != "" {
		if err := os.Setenv("STORE", c.storeFlag); err != nil {
			return config.Config{}, err
		}
	}
	if c.logLevelFlag != "" {
		if err := os.Setenv("LOG_LEVEL", c.logLevelFlag); err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(nil)
}

// ensureApp builds the service graph once per invocation. Commands run as
// the system identity.
func (c *commandContext) ensureApp(cmd *cobra.Command, mutate func(*config.Config)) (*app.App, error) {
	c.once.Do(func() {
		cfg, err := c.config()
		if err != nil {
			c.err = err
			return
		}
		if mutate != nil {
			mutate(&cfg)
		}
		logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cmd.ErrOrStderr()})
		if err != nil {
			c.err = err
			return
		}
		cmd.SetContext(auth.WithIdentity(cmd.Context(), auth.System))
		c.cfg = cfg
		c.app, c.err = app.Build(cmd.Context(), cfg, logger)
	})
	return c.app, c.err
}

func (c *commandContext) close() {
	if c.app != nil {
		c.app.Close()
	}
}
