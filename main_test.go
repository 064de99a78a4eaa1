package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/phobologic/convex-doctor/internal/project"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func createSampleProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "package.json", `{"name": "sample-app", "dependencies": {"convex": "^1.17.0"}}`)
	writeTestFile(t, dir, "convex/schema.ts", `import { defineSchema, defineTable } from "convex/server";
import { v } from "convex/values";

export default defineSchema({
  messages: defineTable({ body: v.string(), author: v.string() }).index("by_author", ["author"]),
});
`)
	writeTestFile(t, dir, "convex/messages.ts", `import { query } from "./_generated/server";

export const list = query({
  handler: async (ctx) => {
    return await ctx.db.query("messages").collect();
  },
});
`)
	return dir
}

func TestRunBasic(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)

	var stdout, stderr bytes.Buffer
	err := run([]string{"--no-color", dir}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{
		"sample-app",
		"2 files analyzed",
		"Score: ",
		"security/missing-arg-validators",
		"perf/unbounded-collect",
		"convex/messages.ts:5:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunJSON(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--format", "json", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	var got struct {
		Version string `json:"version"`
		Score   struct {
			Value int    `json:"value"`
			Label string `json:"label"`
		} `json:"score"`
		Summary struct {
			Errors int `json:"errors"`
			Files  int `json:"files"`
		} `json:"summary"`
		Diagnostics []struct {
			Rule string `json:"rule"`
			File string `json:"file"`
		} `json:"diagnostics"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout.String())
	}
	if got.Version != version {
		t.Errorf("version = %q, want %q", got.Version, version)
	}
	if got.Summary.Files != 2 {
		t.Errorf("files = %d, want 2", got.Summary.Files)
	}
	if got.Summary.Errors == 0 || len(got.Diagnostics) == 0 {
		t.Errorf("expected findings, got %+v", got)
	}
	if got.Score.Value <= 0 || got.Score.Value >= 100 {
		t.Errorf("score = %d", got.Score.Value)
	}
}

func TestRunTOON(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{dir, "--format", "toon"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	out := stdout.String()
	if !strings.HasPrefix(out, "project: sample-app\n") {
		t.Errorf("unexpected header:\n%s", out)
	}
	if !strings.Contains(out, "diagnostics[") {
		t.Errorf("missing diagnostics table:\n%s", out)
	}
}

func TestRunScoreOnly(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--score", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	n, err := strconv.Atoi(strings.TrimSpace(stdout.String()))
	if err != nil {
		t.Fatalf("--score output %q is not an integer", stdout.String())
	}
	if n < 0 || n > 100 {
		t.Errorf("score %d out of range", n)
	}
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	for _, flag := range []string{"-V", "--version"} {
		var stdout, stderr bytes.Buffer
		if err := run([]string{flag}, &stdout, &stderr); err != nil {
			t.Fatalf("run %s: %v", flag, err)
		}
		if got := stdout.String(); got != "convex-doctor dev\n" {
			t.Errorf("%s: got %q", flag, got)
		}
	}
}

func TestRunNoConvexDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	err := run([]string{dir}, &stdout, &stderr)
	if !errors.Is(err, project.ErrNoConvexDir) {
		t.Fatalf("err = %v, want ErrNoConvexDir", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("no report expected, got:\n%s", stdout.String())
	}
}

func TestRunUnknownFormat(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)

	var stdout, stderr bytes.Buffer
	err := run([]string{"--format", "xml", dir}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "xml") {
		t.Fatalf("err = %v, want unknown format", err)
	}
}

func TestRunFailBelow(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)
	writeTestFile(t, dir, "convex-doctor.toml", "[ci]\nfail_below = 100\n")

	var stdout, stderr bytes.Buffer
	err := run([]string{"--no-color", dir}, &stdout, &stderr)
	if !errors.Is(err, errScoreBelowThreshold) {
		t.Fatalf("err = %v, want errScoreBelowThreshold", err)
	}
	// The report is still printed.
	if !strings.Contains(stdout.String(), "Score: ") {
		t.Errorf("report missing:\n%s", stdout.String())
	}
}

func TestRunConfigFlag(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)
	cfgPath := filepath.Join(t.TempDir(), "doctor.toml")
	writeTestFile(t, filepath.Dir(cfgPath), "doctor.toml", `[rules]
"perf/unbounded-collect" = "off"
`)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--config", cfgPath, "--format", "json", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}
	if strings.Contains(stdout.String(), "perf/unbounded-collect") {
		t.Error("disabled rule reported")
	}
}

func TestRunVerboseLogs(t *testing.T) {
	t.Parallel()
	dir := createSampleProject(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"-v", "--no-color", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stderr.String(), "discovered files") {
		t.Errorf("expected debug log on stderr, got %q", stderr.String())
	}
}

func TestRunTooManyArgs(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"a", "b"}, &stdout, &stderr); err == nil {
		t.Fatal("expected error for two paths")
	}
}

func TestRulesCommand(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"rules"}, &stdout, &stderr); err != nil {
		t.Fatalf("rules: %v", err)
	}
	out := stdout.String()
	if !strings.HasPrefix(out, "RULE") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "perf/unbounded-collect") || !strings.Contains(out, "1.2") {
		t.Errorf("missing rule row:\n%s", out)
	}
}

func TestRulesCommandJSON(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"rules", "--json"}, &stdout, &stderr); err != nil {
		t.Fatalf("rules: %v", err)
	}
	var got []ruleInfo
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 72 {
		t.Errorf("got %d rules, want 72", len(got))
	}
	if got[0].ID != "security/missing-arg-validators" || got[0].Weight != 1.5 {
		t.Errorf("first rule = %+v", got[0])
	}
}
