// Package discover finds the source files of a Convex project.
package discover

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/phobologic/convex-doctor/internal/lang"
)

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path     string // Relative to project root, slash-separated
	Language string
}

// Matcher reports whether a root-relative, slash-separated path is ignored.
// *ignore.GitIgnore satisfies it.
type Matcher interface {
	MatchesPath(path string) bool
}

var skipDirs = map[string]struct{}{
	"_generated":   {},
	"node_modules": {},
}

const gitTimeout = 10 * time.Second

// Files discovers analyzable source files under convexDir. Paths are
// reported relative to root. ignored may be nil.
func Files(convexDir, root string, ignored Matcher) ([]FileEntry, error) {
	var results []FileEntry

	err := filepath.WalkDir(convexDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == convexDir {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		langName := lang.ForPath(name)
		if langName == "" {
			return nil
		}
		if ignored != nil && ignored.MatchesPath(rel) {
			return nil
		}

		results = append(results, FileEntry{Path: rel, Language: langName})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

// ChangedFiles returns the paths, relative to root, of files changed on the
// branch since it forked from base, plus staged and unstaged edits and untracked
// files. root may be a subdirectory of the repository.
func ChangedFiles(ctx context.Context, root, base string) (map[string]struct{}, error) {
	changed := make(map[string]struct{})
	queries := [][]string{
		{"diff", "--name-only", "--relative", base + "...HEAD"},
		{"diff", "--name-only", "--relative"},
		{"diff", "--name-only", "--relative", "--cached"},
		{"ls-files", "--others", "--exclude-standard"},
	}
	for _, args := range queries {
		lines, err := git(ctx, root, args...)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			changed[line] = struct{}{}
		}
	}
	return changed, nil
}

func git(ctx context.Context, root string, args ...string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	var lines []string
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}
