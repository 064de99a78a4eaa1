// convex-doctor checks a Convex backend for common mistakes and scores its
// health.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/phobologic/convex-doctor/internal/engine"
	"github.com/phobologic/convex-doctor/internal/report"
)

var version = "dev"

// errScoreBelowThreshold is returned after the report is printed when the
// score is lower than ci.fail_below.
var errScoreBelowThreshold = errors.New("score below threshold")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

type rootFlags struct {
	format      string
	scoreOnly   bool
	diffBase    string
	verbose     bool
	noColor     bool
	configPath  string
	showVersion bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:   "convex-doctor [path]",
		Short: "Diagnose a Convex backend",
		Long: `convex-doctor statically analyzes the convex/ directory of a project for
security, performance, correctness, schema, architecture, configuration and
client-side issues, and prints a 0-100 health score.

path defaults to the current directory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.showVersion {
				_, _ = fmt.Fprintf(stdout, "convex-doctor %s\n", version)
				return nil
			}
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			return analyze(cmd.Context(), root, f, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	fl := cmd.Flags()
	fl.StringVar(&f.format, "format", "cli", "output format: cli, json or toon")
	fl.BoolVar(&f.scoreOnly, "score", false, "print only the score")
	fl.StringVar(&f.diffBase, "diff", "", "only analyze files changed since this git ref")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "list every finding and enable debug logging")
	fl.BoolVar(&f.noColor, "no-color", false, "disable colored output")
	fl.StringVar(&f.configPath, "config", "", "config file (default: <path>/convex-doctor.toml)")
	fl.BoolVarP(&f.showVersion, "version", "V", false, "show version and exit")

	cmd.AddCommand(newInitCmd(stdout, stderr), newRulesCmd(stdout))
	return cmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func analyze(ctx context.Context, root string, f rootFlags, stdout, stderr io.Writer) error {
	if !slices.Contains(report.Formats, f.format) {
		return fmt.Errorf("unknown format %q (want cli, json or toon)", f.format)
	}

	logger := newLogger(stderr, f.verbose)
	res, err := engine.Run(ctx, engine.Options{
		Root:       root,
		ConfigPath: f.configPath,
		DiffBase:   f.diffBase,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	rep := &report.Report{
		Project:     res.Project.Name,
		Version:     version,
		Files:       len(res.Files),
		Diagnostics: res.Diagnostics,
		Score:       res.Score,
	}
	if f.scoreOnly {
		err = report.WriteScore(stdout, rep)
	} else {
		err = report.Write(stdout, rep, report.Options{
			Format:  f.format,
			Color:   report.ColorEnabled(stdout, f.noColor),
			Verbose: f.verbose,
		})
	}
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if res.FailBelow > 0 && res.Score.Value < res.FailBelow {
		return fmt.Errorf("%w: %d < %d", errScoreBelowThreshold, res.Score.Value, res.FailBelow)
	}
	return nil
}
