package main

import (
	"os"

	"github.com/jaywantadh/BlockStash/config"
	"github.com/jaywantadh/BlockStash/internal/engine"
	"github.com/jaywantadh/BlockStash/pkg/env"
	"github.com/jaywantadh/BlockStash/pkg/logging"
	"github.com/urfave/cli/v2"
)

func main() {
	env.LoadEnv()

	if err := newApp().Run(os.Args); err != nil {
		logging.Log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "BlockStash",
		Usage: "A deduplicating, replicated block store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "directory holding config.yaml",
				Value:   ".",
				EnvVars: []string{"BLOCKSTASH_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log_level from the config",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			putCommand,
			getCommand,
			statCommand,
			rmCommand,
			tokenCommand,
			configCommand,
			serveCommand,
		},
	}
}

func setup(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	logging.InitLogger(cfg.LogLevel, cfg.LogFile)
	return nil
}

func openEngine() (*engine.Engine, error) {
	return engine.New(config.Config, engine.WithLogger(logging.Log))
}
