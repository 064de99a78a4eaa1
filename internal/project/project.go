// Package project locates a Convex project and collects the filesystem facts
// that project-level rules consume.
package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/convex-doctor/internal/model"
)

// ErrNoConvexDir is returned when the root has no convex/ directory.
var ErrNoConvexDir = errors.New("no convex/ directory found")

// Info describes a detected project.
type Info struct {
	Root          string // absolute project root
	ConvexDir     string // absolute path of convex/
	Name          string
	ConvexVersion string
	Framework     string
	Flags         model.ProjectFlags
}

type packageJSON struct {
	Name            string            `json:"name"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

type convexJSON struct {
	Node json.RawMessage `json:"node"`
}

// frameworks maps a package.json dependency to the framework it implies,
// checked in order.
var frameworks = []struct{ dep, name string }{
	{"next", "nextjs"},
	{"vite", "vite"},
	{"@remix-run/node", "remix"},
}

// Detect inspects root. It fails only when root has no convex/ directory or
// a manifest is present but unreadable.
func Detect(root string) (*Info, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	convexDir := filepath.Join(abs, "convex")
	if fi, err := os.Stat(convexDir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", abs, ErrNoConvexDir)
	}

	info := &Info{Root: abs, ConvexDir: convexDir, Name: filepath.Base(abs)}
	f := &info.Flags
	f.HasSchema = exists(convexDir, "schema.ts") || exists(convexDir, "schema.js")
	f.HasAuthConfig = exists(convexDir, "auth.config.ts") || exists(convexDir, "auth.config.js")
	f.HasGeneratedDir = isDir(filepath.Join(convexDir, "_generated"))
	f.HasTSConfig = exists(convexDir, "tsconfig.json")
	f.HasEnvLocal = exists(abs, ".env.local")
	if f.HasEnvLocal {
		f.EnvGitignored = gitignored(abs, ".env.local")
	}
	f.GeneratedModified = generatedModified(abs)

	if exists(abs, "convex.json") {
		f.HasConvexJSON = true
		v, err := readNodeVersion(filepath.Join(abs, "convex.json"))
		if err != nil {
			return nil, err
		}
		f.NodeVersion = v
	}

	if exists(abs, "package.json") {
		if err := info.readPackage(filepath.Join(abs, "package.json")); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func (info *Info) readPackage(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading package.json: %w", err)
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return fmt.Errorf("parsing package.json: %w", err)
	}
	if pkg.Name != "" {
		info.Name = pkg.Name
	}
	dep := func(name string) (string, bool) {
		if v, ok := pkg.Dependencies[name]; ok {
			return v, true
		}
		v, ok := pkg.DevDependencies[name]
		return v, ok
	}
	if v, ok := dep("convex"); ok {
		info.ConvexVersion = v
	}
	for _, fw := range frameworks {
		if _, ok := dep(fw.dep); ok {
			info.Framework = fw.name
			break
		}
	}
	return nil
}

// readNodeVersion accepts both `"node": {"nodeVersion": "20"}` and
// `"node": "20"`.
func readNodeVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading convex.json: %w", err)
	}
	var cfg convexJSON
	if err := json.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("parsing convex.json: %w", err)
	}
	if len(cfg.Node) == 0 {
		return "", nil
	}
	var s string
	if json.Unmarshal(cfg.Node, &s) == nil {
		return s, nil
	}
	var obj struct {
		NodeVersion json.RawMessage `json:"nodeVersion"`
	}
	if json.Unmarshal(cfg.Node, &obj) != nil || len(obj.NodeVersion) == 0 {
		return "", nil
	}
	if json.Unmarshal(obj.NodeVersion, &s) == nil {
		return s, nil
	}
	// A bare number such as 18.
	return strings.TrimSpace(string(obj.NodeVersion)), nil
}

// gitignored reports whether rel is matched by the root .gitignore.
func gitignored(root, rel string) bool {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return false
	}
	return gi.MatchesPath(rel)
}

// generatedModified reports uncommitted changes under convex/_generated.
// It is false when root is not a git checkout or git is unavailable.
func generatedModified(root string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain", "--", "convex/_generated")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) != ""
}

func exists(dir, name string) bool {
	fi, err := os.Stat(filepath.Join(dir, name))
	return err == nil && !fi.IsDir()
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
