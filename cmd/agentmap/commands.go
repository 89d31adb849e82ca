package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/arch"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/engine"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/mcp"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/scanner"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// scanReport is the --json output of scan
type scanReport struct {
	*scanner.ScanResult
	Caches engine.Caches `json:"caches"`
}

func scanCommand(c *cli.Context) error {
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.Scan(c.Context, c.Args().Slice(), c.Bool("no-write"))
	if err != nil {
		return err
	}
	if c.Bool("json") {
		if err := writeJSON(c.App.Writer, scanReport{ScanResult: res, Caches: e.CacheStats()}); err != nil {
			return err
		}
	} else {
		printScan(c.App.Writer, res)
	}

	if res.Canceled {
		return cli.Exit("scan canceled", exitChanges)
	}
	if len(res.Written) > 0 {
		return cli.Exit("", exitChanges)
	}
	return nil
}

func printScan(w io.Writer, res *scanner.ScanResult) {
	for _, p := range res.Written {
		fmt.Fprintf(w, "wrote %s\n", p)
	}
	for _, fe := range res.Errors {
		log.Printf("%s error: %s", fe.Kind, fe.Error())
	}
	fmt.Fprintf(w, "%d written, %d unchanged, %d skipped, %d errors in %s\n",
		len(res.Written), len(res.Unchanged), len(res.Skipped), len(res.Errors),
		res.Duration.Round(time.Millisecond))
}

func checkCommand(c *cli.Context) error {
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	sum, err := e.Check(c.Context, c.Args().Slice())
	if err != nil {
		return err
	}
	if c.Bool("json") {
		if err := writeJSON(c.App.Writer, sum); err != nil {
			return err
		}
	} else {
		for _, r := range sum.Results {
			if r.Status == scanner.StatusValid || r.Status == scanner.StatusSkipped {
				continue
			}
			line := fmt.Sprintf("%-8s %s", r.Status, r.Path)
			if r.Reason != "" {
				line += ": " + r.Reason
			}
			fmt.Fprintln(c.App.Writer, line)
		}
		fmt.Fprintf(c.App.Writer, "%d valid, %d missing, %d outdated, %d invalid, %d skipped\n",
			len(sum.Valid), len(sum.Missing), len(sum.Outdated), len(sum.Invalid), len(sum.Skipped))
	}
	if sum.HasIssues() {
		return cli.Exit("", exitChanges)
	}
	return nil
}

func watchCommand(c *cli.Context) error {
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.Scan(c.Context, c.Args().Slice(), false)
	if err != nil {
		return err
	}
	printScan(c.App.Writer, res)

	w, err := scanner.NewWatcher(e.Scanner(), e.Store(), e.Config(), scanner.Options{})
	if err != nil {
		return err
	}
	w.OnBatch = func(b scanner.WatchBatch) {
		for _, p := range b.Removed {
			fmt.Fprintf(c.App.Writer, "removed %s\n", p)
		}
		if b.Result != nil {
			printScan(c.App.Writer, b.Result)
		}
		for _, fe := range b.Errors {
			log.Printf("%s error: %s", fe.Kind, fe.Error())
		}
	}
	fmt.Fprintf(c.App.Writer, "watching %s\n", e.Config().Project.Root)
	return w.Run(c.Context)
}

func searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return amerrors.NewConfigError("pattern", "", errors.New("usage: agentmap search PATTERN [PATHS...]"))
	}
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	req := engine.SearchRequest{
		Pattern:   c.Args().First(),
		Paths:     c.Args().Tail(),
		Type:      c.String("type"),
		Scope:     c.String("scope"),
		Threshold: c.Float64("threshold"),
		Top:       c.Int("top"),
	}
	if c.IsSet("case-sensitive") {
		cs := c.Bool("case-sensitive")
		req.CaseSensitive = &cs
	}
	res, err := e.Search(c.Context, req)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, res)
	}
	for _, r := range res.Results {
		fmt.Fprintf(c.App.Writer, "%.2f  %s:%s  %s %s  [%s]\n",
			r.Confidence, r.Path, r.Symbol.Range.Lines(), r.Symbol.Kind, r.Symbol.Name, r.Field)
	}
	fmt.Fprintf(c.App.Writer, "%d matches in %d files\n", len(res.Results), res.Files)
	return nil
}

func exportCommand(c *cli.Context) error {
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	name := c.String("format")
	if name == "" {
		name = e.Config().Architecture.Format
	}
	format, err := arch.ParseFormat(name)
	if err != nil {
		return err
	}
	a, err := e.Export(c.Context, engine.ExportRequest{Paths: c.Args().Slice(), Detail: c.String("detail")})
	if err != nil {
		return err
	}

	out := c.String("out")
	if out == "-" {
		return arch.Render(c.App.Writer, a, format)
	}
	if out == "" {
		out = filepath.Join(e.Config().Project.Root, config.DefaultArchitectureFile+format.Extension())
	}
	f, err := os.Create(out)
	if err != nil {
		return amerrors.NewIoError("create", out, err)
	}
	if err := arch.Render(f, a, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return amerrors.NewIoError("close", out, err)
	}
	fmt.Fprintf(c.App.Writer, "wrote %s (%s, %s detail, %d files, %d symbols)\n",
		out, format, a.Metadata.Detail, a.Metadata.Files, len(a.Symbols))
	return nil
}

func mcpCommand(c *cli.Context) error {
	// stdout carries the protocol
	debug.SetMCPMode(true)

	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := mcp.NewServer(e).Run(c.Context); err != nil && !strings.Contains(err.Error(), "EOF") {
		return err
	}
	return nil
}
