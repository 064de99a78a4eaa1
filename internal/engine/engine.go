// Package engine runs a full analysis: discovery, parallel fact extraction
// and per-file rules, then cross-file rules and scoring.
package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/convex-doctor/internal/aggregate"
	"github.com/phobologic/convex-doctor/internal/config"
	"github.com/phobologic/convex-doctor/internal/discover"
	"github.com/phobologic/convex-doctor/internal/lang"
	"github.com/phobologic/convex-doctor/internal/model"
	"github.com/phobologic/convex-doctor/internal/parse"
	"github.com/phobologic/convex-doctor/internal/project"
	"github.com/phobologic/convex-doctor/internal/rules"
	"github.com/phobologic/convex-doctor/internal/scoring"
)

// DefaultMaxFileSize is the largest file analyzed; bigger files are skipped.
const DefaultMaxFileSize = 1_000_000 // 1 MB

// Options configures a run.
type Options struct {
	Root        string
	ConfigPath  string // overrides <Root>/convex-doctor.toml
	DiffBase    string // when set, only files changed since this ref are reported
	MaxFileSize int64  // 0 means DefaultMaxFileSize
	Logger      *slog.Logger
}

// Result is the outcome of a run.
type Result struct {
	Project     *project.Info
	Config      *config.Config
	Files       []string
	Diagnostics []model.Diagnostic
	Score       scoring.Result
	FailBelow   int
}

// Run analyzes the project at opts.Root. Only project detection, config and
// diff failures are fatal; unreadable or unparseable files are reported and
// skipped.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	info, err := project.Detect(opts.Root)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(info.Root, opts.ConfigPath, logger)
	if err != nil {
		return nil, err
	}

	files, err := discover.Files(info.ConvexDir, info.Root, cfg.IgnoreMatcher())
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}
	logger.Debug("discovered files", "count", len(files))

	// In diff mode every file still feeds the aggregator; only findings in
	// unchanged files are dropped.
	var unchanged map[string]struct{}
	if opts.DiffBase != "" {
		changed, err := discover.ChangedFiles(ctx, info.Root, opts.DiffBase)
		if err != nil {
			return nil, fmt.Errorf("diff against %s: %w", opts.DiffBase, err)
		}
		unchanged = make(map[string]struct{})
		for _, f := range files {
			if _, ok := changed[f.Path]; !ok {
				unchanged[f.Path] = struct{}{}
			}
		}
		logger.Debug("restricted to changed files", "base", opts.DiffBase, "count", len(files)-len(unchanged))
	}
	reported := func(path string) bool {
		_, skip := unchanged[path]
		return !skip
	}

	files = filterBySize(info.Root, files, maxSize, logger)

	facts, diags, err := analyzeFiles(ctx, info.Root, files, cfg.RuleEnabled, reported, logger)
	if err != nil {
		return nil, err
	}

	pf := aggregate.Merge(facts, info.Flags)
	for _, d := range rules.RunProject(pf, cfg.RuleEnabled) {
		if reported(d.File) {
			diags = append(diags, d)
		}
	}

	slices.SortStableFunc(diags, func(a, b model.Diagnostic) int {
		return cmp.Or(
			cmp.Compare(a.File, b.File),
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.Column, b.Column),
			cmp.Compare(a.Rule, b.Rule),
		)
	})

	var paths []string
	for _, f := range files {
		if reported(f.Path) {
			paths = append(paths, f.Path)
		}
	}

	return &Result{
		Project:     info,
		Config:      cfg,
		Files:       paths,
		Diagnostics: diags,
		Score:       scoring.Compute(diags),
		FailBelow:   cfg.FailBelow(),
	}, nil
}

func filterBySize(root string, files []discover.FileEntry, maxSize int64, logger *slog.Logger) []discover.FileEntry {
	var kept []discover.FileEntry
	for _, f := range files {
		fi, err := os.Stat(filepath.Join(root, filepath.FromSlash(f.Path)))
		if err != nil {
			kept = append(kept, f) // the read reports it
			continue
		}
		if fi.Size() > maxSize {
			logger.Warn("skipping large file", "path", f.Path, "bytes", fi.Size(), "limit", maxSize)
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// analyzeFiles extracts facts from every file and runs file rules on those
// for which reported returns true, on a worker pool. The returned facts are
// indexed like files; entries for unreadable or unparseable files are nil.
func analyzeFiles(ctx context.Context, root string, files []discover.FileEntry, enabled, reported func(string) bool, logger *slog.Logger) ([]*model.FileFacts, []model.Diagnostic, error) {
	facts := make([]*model.FileFacts, len(files))
	if len(files) == 0 {
		return facts, nil, nil
	}

	numWorkers := min(runtime.GOMAXPROCS(0), len(files))

	var (
		mu    sync.Mutex
		diags []model.Diagnostic
	)
	emit := func(ds ...model.Diagnostic) {
		if len(ds) == 0 {
			return
		}
		mu.Lock()
		diags = append(diags, ds...)
		mu.Unlock()
	}

	work := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(work)
		for i := range files {
			select {
			case work <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for range numWorkers {
		g.Go(func() error {
			// Each goroutine gets its own parsers
			parsers := make(map[string]*sitter.Parser)
			defer func() {
				for _, p := range parsers {
					p.Close()
				}
			}()

			for idx := range work {
				f := files[idx]
				p, ok := parsers[f.Language]
				if !ok {
					p = lang.Languages[f.Language].NewParser()
					parsers[f.Language] = p
				}

				source, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f.Path)))
				if err != nil {
					logger.Warn("skipping file", "path", f.Path, "err", err)
					continue
				}

				ff, err := parse.File(gctx, p, source, f.Path)
				var syntaxErr *parse.SyntaxError
				switch {
				case errors.As(err, &syntaxErr):
					if reported(f.Path) {
						loc := model.Location{Line: syntaxErr.Line, Column: syntaxErr.Column}
						emit(rules.ParseFailure(f.Path, loc, err))
					}
					continue
				case err != nil:
					return err
				}

				facts[idx] = ff
				if reported(f.Path) {
					emit(rules.Run(ff, enabled)...)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return facts, diags, nil
}
