package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/convex-doctor/internal/config"
	"github.com/phobologic/convex-doctor/internal/rules"
)

// TestApplySectionCreate verifies that applySection on empty content wraps the
// section in sentinels with a trailing newline.
func TestApplySectionCreate(t *testing.T) {
	t.Parallel()
	section := sentinelStart + "\nbody\n" + sentinelEnd
	got := applySection("", section)
	if !strings.Contains(got, sentinelStart) {
		t.Error("missing sentinel start")
	}
	if !strings.Contains(got, sentinelEnd) {
		t.Error("missing sentinel end")
	}
	if !strings.HasSuffix(got, sentinelEnd+"\n") {
		t.Errorf("missing trailing newline: %q", got)
	}
}

// TestApplySectionAppend verifies that existing content without a sentinel block
// is preserved and the section is appended.
func TestApplySectionAppend(t *testing.T) {
	t.Parallel()
	existing := "[ci]\nfail_below = 70"
	section := sentinelStart + "\nnew content\n" + sentinelEnd
	got := applySection(existing, section)

	if !strings.HasPrefix(got, existing+"\n") {
		t.Errorf("existing content should be preserved at start:\n%s", got)
	}
	if !strings.Contains(got, "new content") {
		t.Error("new content missing")
	}
}

// TestApplySectionUpdate verifies that an existing sentinel block is replaced
// precisely, leaving surrounding content intact.
func TestApplySectionUpdate(t *testing.T) {
	t.Parallel()
	before := "[rules]\n\"perf/unbounded-collect\" = \"off\"\n\n"
	after := "\n\n[ci]\nfail_below = 50\n"
	old := before + sentinelStart + "\nold content\n" + sentinelEnd + after

	section := sentinelStart + "\nnew content\n" + sentinelEnd
	got := applySection(old, section)

	if !strings.HasPrefix(got, before) {
		t.Errorf("content before sentinel should be preserved:\n%s", got)
	}
	if !strings.HasSuffix(got, after) {
		t.Errorf("content after sentinel should be preserved:\n%s", got)
	}
	if strings.Contains(got, "old content") {
		t.Error("old content should be replaced")
	}
}

// TestGenerateSectionListsRules verifies every user-facing rule appears once.
func TestGenerateSectionListsRules(t *testing.T) {
	t.Parallel()
	section := generateSection()
	for _, id := range rules.IDs() {
		line := "# \"" + id + "\" = \"off\""
		n := strings.Count(section, line)
		switch {
		case id == rules.FileParseError && n != 0:
			t.Errorf("reserved rule %s should not be listed", id)
		case id != rules.FileParseError && n != 1:
			t.Errorf("rule %s listed %d times", id, n)
		}
	}
}

// TestInitCreatesFile verifies that init creates a loadable config with
// defaults when none exists.
func TestInitCreatesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"init", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}

	path := filepath.Join(dir, config.FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("file not created: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, sentinelStart) || !strings.Contains(content, sentinelEnd) {
		t.Error("sentinels missing from created file")
	}
	if !strings.Contains(stderr.String(), "wrote") {
		t.Errorf("stderr = %q", stderr.String())
	}

	cfg, err := config.Load(dir, "", nil)
	if err != nil {
		t.Fatalf("created config does not load: %v", err)
	}
	if cfg.Path != path {
		t.Errorf("cfg.Path = %q, want %q", cfg.Path, path)
	}
	for _, id := range rules.IDs() {
		if !cfg.RuleEnabled(id) {
			t.Errorf("rule %s disabled by generated config", id)
		}
	}
	if got := cfg.Ignore.Files; len(got) != 1 || got[0] != "convex/_generated/**" {
		t.Errorf("ignore.files = %v", got)
	}
}

// TestInitDryRun verifies that --dry-run prints the full would-be file content
// to stdout and does not create or modify the target file.
func TestInitDryRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"init", "--dry-run", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
		t.Error("--dry-run should not create the file")
	}
	out := stdout.String()
	if !strings.Contains(out, "[ci]") || !strings.Contains(out, sentinelStart) {
		t.Errorf("dry-run output incomplete:\n%s", out)
	}
}

// TestInitPreservesSettings verifies that rerunning init only replaces the
// managed block.
func TestInitPreservesSettings(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)

	existing := "[rules]\n\"perf/unbounded-collect\" = \"off\"\n\n" +
		sentinelStart + "\n# stale\n" + sentinelEnd + "\n\n[ci]\nfail_below = 70\n"
	if err := os.WriteFile(path, []byte(existing), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := run([]string{"init", dir}, &buf, &buf); err != nil {
		t.Fatalf("init: %v", err)
	}
	data, _ := os.ReadFile(path)
	content := string(data)
	if strings.Contains(content, "# stale") {
		t.Error("managed block not replaced")
	}

	cfg, err := config.Load(dir, "", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuleEnabled("perf/unbounded-collect") {
		t.Error("user setting lost")
	}
	if cfg.FailBelow() != 70 {
		t.Errorf("fail_below = %d, want 70", cfg.FailBelow())
	}
}

// TestInitIdempotent verifies that running init twice produces identical output.
func TestInitIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)

	var buf bytes.Buffer
	if err := run([]string{"init", dir}, &buf, &buf); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := os.ReadFile(path)

	if err := run([]string{"init", dir}, &buf, &buf); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := os.ReadFile(path)

	if string(first) != string(second) {
		t.Errorf("init is not idempotent:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}
