// ==============================================================================================
// FILE: main.go
// ==============================================================================================
// PACKAGE: main
// PURPOSE: CLI entry point. Builds a host.Context from flags (or a YAML config file) and either
//          runs a script file to completion or drops into the interactive REPL.
// ==============================================================================================

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"wings/host"
	"wings/repl"
)

func main() {
	app := &cli.App{
		Name:      "wings",
		Usage:     "run or explore a wings script",
		ArgsUsage: "[script.py]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max-alloc", Usage: "hard cap on live heap objects (0 = unlimited)"},
			&cli.Float64Flag{Name: "gc-factor", Usage: "collector growth trigger factor (0 = default)"},
			&cli.IntFlag{Name: "recursion-limit", Usage: "max call-stack depth (0 = default)"},
			&cli.StringFlag{Name: "config", Usage: "path to a YAML config file (overridden by explicit flags)"},
			&cli.BoolFlag{Name: "no-color", Usage: "disable ANSI coloring in the REPL"},
		},
		Commands: []*cli.Command{
			{
				Name:  "repl",
				Usage: "launch the interactive REPL explicitly",
				Action: func(c *cli.Context) error {
					return runREPL(c)
				},
			},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() > 0 {
				return runFile(c, c.Args().First())
			}
			return runREPL(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildConfig(c *cli.Context) (host.Config, error) {
	cfg := host.Config{}
	if path := c.String("config"); path != "" {
		fileCfg, err := host.LoadConfig(path)
		if err != nil {
			return host.Config{}, err
		}
		cfg = fileCfg
	}
	if v := c.Int("max-alloc"); v != 0 {
		cfg.MaxAllocs = v
	}
	if v := c.Float64("gc-factor"); v != 0 {
		cfg.GCFactor = v
	}
	if v := c.Int("recursion-limit"); v != 0 {
		cfg.RecursionLimit = v
	}
	cfg.Print = os.Stdout
	return cfg, nil
}

func runFile(c *cli.Context, path string) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}
	ctx, err := host.NewContext(cfg)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	fn, err := ctx.Compile(string(data), host.ModeExec)
	if err != nil {
		return err
	}
	if _, err := ctx.Invoke(fn, nil, nil); err != nil {
		if tb := ctx.FormatTraceback(); tb != "" {
			fmt.Fprintln(os.Stderr, tb)
		}
		return err
	}
	return nil
}

func runREPL(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}
	ctx, err := host.NewContext(cfg)
	if err != nil {
		return err
	}
	repl.Start(ctx, os.Stdout, !c.Bool("no-color"))
	return nil
}
