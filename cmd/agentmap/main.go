package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/engine"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/version"
)

// Exit codes
const (
	exitOK      = 0
	exitChanges = 1 // scan wrote anchors, check found issues, or a run failed
	exitConfig  = 2
)

// loadConfigWithOverrides loads the configuration of --root and applies the
// command line overrides on top of it
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root, err := filepath.Abs(c.String("root"))
	if err != nil {
		return nil, amerrors.NewConfigError("root", c.String("root"), err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if includes := c.StringSlice("include"); len(includes) > 0 {
		cfg.Include = includes
	}
	if excludes := c.StringSlice("exclude"); len(excludes) > 0 {
		cfg.Exclude = append(cfg.Exclude, excludes...)
	}
	if langs := c.StringSlice("lang"); len(langs) > 0 {
		cfg.Languages = langs
	}
	return cfg, config.ValidateConfig(cfg)
}

// openEngine loads the configuration and opens the engine for one command
func openEngine(c *cli.Context) (*engine.Engine, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, err
	}
	return engine.Open(c.Context, cfg)
}

// usageError reports bad flags or arguments as a configuration error
func usageError(_ *cli.Context, err error, _ bool) error {
	return amerrors.NewConfigError("usage", "", err)
}

// rootAction shows help, or rejects a command name nothing matched
func rootAction(c *cli.Context) error {
	if c.NArg() > 0 {
		return amerrors.NewConfigError("command", c.Args().First(), fmt.Errorf("unknown command %q", c.Args().First()))
	}
	return cli.ShowAppHelp(c)
}

func newApp() *cli.App {
	app := &cli.App{
		Name:                   "agentmap",
		Usage:                  "Incremental multi-language source maps for code agents",
		Version:                version.Current().String(),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root; configuration and anchors are relative to it",
				Value:   ".",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Include files matching glob patterns (e.g., --include 'src/**/*.ts')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude files matching glob patterns (e.g., --exclude '**/testdata/**')",
			},
			&cli.StringSliceFlag{
				Name:  "lang",
				Usage: "Restrict analysis to these languages (e.g., --lang go --lang py)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "scan",
				Usage:     "Analyze files and write their anchors",
				ArgsUsage: "[PATHS...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-write", Usage: "Analyze only; leave anchors untouched"},
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
				},
				Action: scanCommand,
			},
			{
				Name:      "check",
				Usage:     "Report missing, outdated and invalid anchors",
				ArgsUsage: "[PATHS...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
				},
				Action: checkCommand,
			},
			{
				Name:      "watch",
				Usage:     "Rescan files as they change",
				ArgsUsage: "[PATHS...]",
				Action:    watchCommand,
			},
			{
				Name:      "search",
				Aliases:   []string{"s"},
				Usage:     "Search symbols",
				ArgsUsage: "PATTERN [PATHS...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "exact, glob, regex or fuzzy", Value: "glob"},
					&cli.StringFlag{Name: "scope", Usage: "names, kinds, paths, roles, relations, frames:<kind> or all, comma separated"},
					&cli.Float64Flag{Name: "threshold", Usage: "Minimum fuzzy similarity"},
					&cli.IntFlag{Name: "top", Aliases: []string{"k"}, Usage: "Keep only the best K results"},
					&cli.BoolFlag{Name: "case-sensitive", Aliases: []string{"c"}, Usage: "Match case exactly"},
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
				},
				Action: searchCommand,
			},
			{
				Name:      "export",
				Usage:     "Export the project architecture",
				ArgsUsage: "[PATHS...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "json, yaml, graphml, dot, mermaid, csv, html, markdown, plantuml, d2 or cypher"},
					&cli.StringFlag{Name: "detail", Aliases: []string{"d"}, Usage: "minimal, basic, standard, detailed or complete"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file; '-' writes to stdout"},
				},
				Action: exportCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Serve scan, check, search and export as MCP tools over stdio",
				Action: mcpCommand,
			},
		},
		Action:       rootAction,
		OnUsageError: usageError,

		// exit codes are decided by exitCode in main
		ExitErrHandler: func(*cli.Context, error) {},
	}
	for _, cmd := range app.Commands {
		cmd.OnUsageError = usageError
	}
	return app
}

// exitCode maps a command error onto the process exit status
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	if amerrors.IsConfig(err) {
		return exitConfig
	}
	return exitChanges
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("agentmap: ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp().RunContext(ctx, os.Args)
	stop()
	debug.CloseDebugLog()

	code := exitCode(err)
	if err != nil && err.Error() != "" {
		fmt.Fprintln(os.Stderr, "agentmap:", err)
	}
	os.Exit(code)
}
