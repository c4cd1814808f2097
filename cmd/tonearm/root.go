package main

import (
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mantonx/tonearm/internal/config"
	"github.com/mantonx/tonearm/internal/logger"
)

var (
	colorInfo    = color.New(color.FgCyan)
	colorSuccess = color.New(color.FgGreen)
	colorWarning = color.New(color.FgYellow)
	colorError   = color.New(color.FgRed, color.Bold)
)

type commandContext struct {
	configPath string
	noColor    bool

	// loadedPath is the file the configuration came from, empty for defaults.
	loadedPath string
}

// configFromEnv returns the config path from TONEARM_CONFIG_PATH or the
// first default location that exists.
func configFromEnv() string {
	if p := os.Getenv("TONEARM_CONFIG_PATH"); p != "" {
		return p
	}
	for _, p := range []string{"./tonearm.yaml", "/etc/tonearm/tonearm.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *commandContext) load() (*config.Config, error) {
	path := strings.TrimSpace(c.configPath)
	if path == "" {
		path = configFromEnv()
	}
	if err := config.Load(path); err != nil {
		return nil, err
	}
	c.loadedPath = path
	cfg := config.Get()
	logger.Configure(cfg.Logging.Level, cfg.Logging.JSON)
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "tonearm",
		Short:         "Media library server with album cover embedding",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.NoColor = ctx.noColor || !isatty.IsTerminal(os.Stdout.Fd())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path (yaml or json)")
	rootCmd.PersistentFlags().BoolVar(&ctx.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newCoverCommand(ctx))
	rootCmd.AddCommand(newCatalogCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))

	return rootCmd
}
