package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	jsonhandler "github.com/apex/log/handlers/json"
	texthandler "github.com/apex/log/handlers/text"
	"github.com/spf13/cobra"

	"github.com/stagepass/audioscan/internal/config"
)

// commandContext loads config once and shares it between subcommands.
type commandContext struct {
	configPath string
	cfg        *config.Config
}

func (c *commandContext) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := c.configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	setupLogging(cfg.Log.Level, cfg.Log.Format)
	c.cfg = cfg
	return cfg, nil
}

func setupLogging(level, format string) {
	if strings.EqualFold(format, "text") {
		log.SetHandler(texthandler.New(os.Stderr))
	} else {
		log.SetHandler(jsonhandler.New(os.Stderr))
	}
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func newRootCommand() *cobra.Command {
	cc := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "audioscan",
		Short:         "AI-generated audio moderation for release uploads",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd == cmd.Root() {
				return nil
			}
			_, err := cc.config()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cc.configPath, "config", "c", "", "Configuration file path (default $CONFIG_PATH or config.yaml)")

	rootCmd.AddCommand(newServeCommand(cc))
	rootCmd.AddCommand(newSweepCommand(cc))
	rootCmd.AddCommand(newMigrateCommand(cc))
	rootCmd.AddCommand(newTokenCommand(cc))
	return rootCmd
}
