package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})), &buf
}

func TestLoadMissingUsesDefaults(t *testing.T) {
	t.Parallel()

	logger, _ := testLogger()
	cfg, err := Load(t.TempDir(), "", logger)
	require.NoError(t, err)
	assert.Empty(t, cfg.Path)
	assert.Equal(t, []string{"convex/_generated/**"}, cfg.Ignore.Files)
	assert.Equal(t, 0, cfg.FailBelow())
	assert.True(t, cfg.RuleEnabled("perf/unbounded-collect"))
}

func TestLoadExplicitMissing(t *testing.T) {
	t.Parallel()

	_, err := Load(t.TempDir(), "/nonexistent/convex-doctor.toml", nil)
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, FileName, `
[rules]
"perf/unbounded-collect" = "off"
"security/missing-auth-check" = false
"arch/large-handler" = "disabled"
"schema/deep-nesting" = "warn"

[ignore]
files = ["convex/legacy/**"]

[ci]
fail_below = 70
`)
	logger, buf := testLogger()
	cfg, err := Load(dir, "", logger)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, FileName), cfg.Path)
	assert.False(t, cfg.RuleEnabled("perf/unbounded-collect"))
	assert.False(t, cfg.RuleEnabled("security/missing-auth-check"))
	assert.False(t, cfg.RuleEnabled("arch/large-handler"))
	assert.True(t, cfg.RuleEnabled("schema/deep-nesting"))
	assert.True(t, cfg.RuleEnabled("perf/filter-without-index"))
	assert.True(t, cfg.RuleEnabled("not/a-rule"))
	assert.Equal(t, []string{"convex/legacy/**"}, cfg.Ignore.Files)
	assert.Equal(t, 70, cfg.FailBelow())
	assert.Empty(t, buf.String())
}

func TestLoadWarnsOnUnknownKeys(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, FileName, `
[rules]
"perf/unbounded-colect" = "off"

[output]
color = true
`)
	logger, buf := testLogger()
	cfg, err := Load(dir, "", logger)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "unknown rule in config")
	assert.Contains(t, out, "suggestion=perf/unbounded-collect")
	assert.Contains(t, out, "unknown config key")
	assert.Contains(t, out, "output.color")
	// The misspelled ID does not disable the real rule.
	assert.True(t, cfg.RuleEnabled("perf/unbounded-collect"))
}

func TestLoadMalformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, FileName, "[rules\nbroken = ")
	_, err := Load(dir, "", nil)
	require.Error(t, err)
}

func TestLoadFailBelowRange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "custom.toml", "[ci]\nfail_below = 150\n")
	_, err := Load(dir, path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fail_below")
}

func TestLoadExplicitPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "ci/doctor.toml", "[ci]\nfail_below = 50\n")
	cfg, err := Load(dir, path, nil)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.FailBelow())
	assert.Equal(t, DefaultIgnore, cfg.Ignore.Files)
}

func TestIgnoreMatcher(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Ignore.Files = append(cfg.Ignore.Files, "convex/legacy/**", "*.test.ts")
	m := cfg.IgnoreMatcher()

	tests := []struct {
		path string
		want bool
	}{
		{"convex/_generated/api.js", true},
		{"convex/legacy/old.ts", true},
		{"convex/messages.test.ts", true},
		{"convex/messages.ts", false},
		{"convex/schema.ts", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.MatchesPath(tt.path), tt.path)
	}
}
