package main

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/hupe1980/modelmux"
	"github.com/hupe1980/modelmux/config"
	"github.com/hupe1980/modelmux/core"
	"github.com/hupe1980/modelmux/engine"
	"github.com/hupe1980/modelmux/logging"
	"github.com/hupe1980/modelmux/scenario"
)

// backendFactory builds the backends for a loaded configuration.
type backendFactory func(cfg *config.Config) []modelmux.Backend

func newApp(stdout, stderr io.Writer, backends backendFactory) *cli.App {
	return &cli.App{
		Name:      "modelmux",
		Usage:     "Run chat scenarios against OpenAI and Anthropic through one interface",
		UsageText: "modelmux [global options] [command]",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				EnvVars: []string{config.EnvConfigPath},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text, json)",
			},
			&cli.StringSliceFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "run only the named backend (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "per-backend run timeout, 0 disables",
			},
		},
		Action: func(c *cli.Context) error {
			return runScenarios(c, backends)
		},
		Commands: []*cli.Command{
			runCommand(backends),
			backendsCommand(backends),
			configCommand(),
		},
	}
}

func runCommand(backends backendFactory) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the single-shot, templated and streaming scenarios (default)",
		Action: func(c *cli.Context) error {
			return runScenarios(c, backends)
		},
	}
}

func backendsCommand(backends backendFactory) *cli.Command {
	return &cli.Command{
		Name:  "backends",
		Usage: "List the backends that would be registered",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			list := backends(cfg)
			if len(list) == 0 {
				return modelmux.ErrNoBackends
			}
			for _, b := range list {
				info := b.Model.Info()
				fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", b.Name, info.Provider, info.Name)
			}
			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Display the effective configuration with secrets masked",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					data, err := cfg.Redacted().YAML()
					if err != nil {
						return fmt.Errorf("encode config: %w", err)
					}
					_, err = c.App.Writer.Write(data)
					return err
				},
			},
			{
				Name:  "path",
				Usage: "Show the default config file path",
				Action: func(c *cli.Context) error {
					path, err := config.DefaultPath()
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, path)
					return nil
				},
			},
		},
	}
}

// loadConfig loads the configuration and applies command line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: w,
	}), nil
}

func runScenarios(c *cli.Context, backends backendFactory) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, c.App.ErrWriter)
	if err != nil {
		return err
	}

	out := c.App.Writer
	summary := engine.NewSummary()

	mux := modelmux.New(func(o *modelmux.Options) {
		o.Logger = logger
		o.Output = out
		o.Callbacks = summary.Callbacks()
	})

	list := backends(cfg)
	if len(list) == 0 {
		return modelmux.ErrNoBackends
	}
	for _, b := range list {
		if err := mux.Register(b.Name, b.Model); err != nil {
			return err
		}
	}

	ops, err := buildOperations(cfg, out)
	if err != nil {
		return err
	}

	targets := c.StringSlice("backend")
	for _, op := range ops {
		op = engine.WithTimeout(op, cfg.Timeout)
		if len(targets) == 0 {
			mux.RunAll(c.Context, op)
			continue
		}
		for _, name := range targets {
			mux.RunOne(c.Context, name, op)
		}
	}

	fmt.Fprintf(out, "\nDone. %s\n", summary)
	return nil
}

// buildOperations returns the single-shot, templated and streaming
// operations, using configured prompts where present.
func buildOperations(cfg *config.Config, w io.Writer) ([]engine.Operation, error) {
	p := cfg.Prompts

	system := orDefault(p.System, scenario.DefaultSystemPrompt)
	question := orDefault(p.Question, scenario.DefaultQuestion)

	tmpl, err := p.BuildTemplate()
	if err != nil {
		return nil, fmt.Errorf("prompts.template: %w", err)
	}
	vars := p.Vars
	if tmpl == nil {
		tmpl = scenario.DefaultTemplate
		if vars == nil {
			vars = scenario.DefaultVars()
		}
	}

	streamMsgs := scenario.DefaultStreamMessages()
	if p.StreamPrompt != "" || p.System != "" {
		streamMsgs = []core.Message{
			core.NewSystemMessage(system),
			core.NewHumanMessage(orDefault(p.StreamPrompt, scenario.DefaultStreamPrompt)),
		}
	}

	return []engine.Operation{
		scenario.SingleShot(system, question, w),
		scenario.Templated(tmpl, vars, w),
		scenario.Streaming(streamMsgs, w),
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
