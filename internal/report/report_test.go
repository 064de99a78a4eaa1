package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/convex-doctor/internal/model"
	"github.com/phobologic/convex-doctor/internal/scoring"
)

func sampleReport() *Report {
	return &Report{
		Project: "chat-app",
		Version: "v1.2.0",
		Files:   3,
		Score:   scoring.Result{Value: 82, Label: scoring.NeedsAttention},
		Diagnostics: []model.Diagnostic{
			{
				Rule: "security/missing-arg-validators", Severity: model.Error, Category: model.Security,
				Message: "Public query `list` has no argument validators", Help: "Add args.",
				File: "convex/messages.ts", Line: 4, Column: 21,
			},
			{
				Rule: "perf/unbounded-collect", Severity: model.Error, Category: model.Performance,
				Message: "Unbounded `.collect()` call", Help: "Use take.",
				File: "convex/messages.ts", Line: 6, Column: 18,
			},
			{
				Rule: "perf/unbounded-collect", Severity: model.Error, Category: model.Performance,
				Message: "Unbounded `.collect()` call", Help: "Use take.",
				File: "convex/posts.ts", Line: 9, Column: 3,
			},
			{
				Rule: "config/missing-convex-json", Severity: model.Warning, Category: model.Configuration,
				Message: "No convex.json found in project root", Help: "Create convex.json.",
				File: ".",
			},
		},
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := sampleReport().Summarize()
	assert.Equal(t, Summary{Errors: 3, Warnings: 1, Infos: 0, Files: 3}, s)
}

func TestWriteCLI(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCLI(&buf, sampleReport(), Options{}))
	out := buf.String()

	assert.Contains(t, out, "chat-app")
	assert.Contains(t, out, "Score: 82/100  Needs attention")
	assert.Contains(t, out, "Security (1)")
	assert.Contains(t, out, "Performance (2)")
	assert.Contains(t, out, "✗ perf/unbounded-collect ×2")
	assert.Contains(t, out, "convex/messages.ts:6:18 and 1 more")
	assert.Contains(t, out, "! config/missing-convex-json")
	assert.Contains(t, out, "→ Use take.")
	assert.Contains(t, out, "3 errors, 1 warning, 0 infos")
	assert.NotContains(t, out, "convex/posts.ts:9:3")

	// Categories appear in display order.
	sec := strings.Index(out, "Security (")
	perf := strings.Index(out, "Performance (")
	cfg := strings.Index(out, "Configuration (")
	assert.True(t, sec < perf && perf < cfg, "category order wrong:\n%s", out)

	// No ANSI escapes without color.
	assert.NotContains(t, out, "\x1b[")
}

func TestWriteCLIVerbose(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCLI(&buf, sampleReport(), Options{Verbose: true}))
	out := buf.String()
	assert.Contains(t, out, "convex/messages.ts:6:18  Unbounded `.collect()` call")
	assert.Contains(t, out, "convex/posts.ts:9:3  Unbounded `.collect()` call")
	assert.NotContains(t, out, "and 1 more")
}

func TestWriteCLIClean(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := &Report{Project: "p", Score: scoring.Compute(nil)}
	require.NoError(t, WriteCLI(&buf, r, Options{}))
	assert.Contains(t, buf.String(), "100/100  Healthy")
	assert.Contains(t, buf.String(), "No issues found.")
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))

	var got struct {
		Version string `json:"version"`
		Score   struct {
			Value int    `json:"value"`
			Label string `json:"label"`
		} `json:"score"`
		Summary     Summary            `json:"summary"`
		Diagnostics []model.Diagnostic `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "v1.2.0", got.Version)
	assert.Equal(t, 82, got.Score.Value)
	assert.Equal(t, "Needs attention", got.Score.Label)
	assert.Equal(t, 3, got.Summary.Errors)
	require.Len(t, got.Diagnostics, 4)
	assert.Equal(t, "security/missing-arg-validators", got.Diagnostics[0].Rule)
	assert.Equal(t, 21, got.Diagnostics[0].Column)
}

func TestWriteJSONEmptyDiagnostics(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, &Report{Score: scoring.Compute(nil)}))
	assert.Contains(t, buf.String(), `"diagnostics": []`)
}

func TestEncodeTOON(t *testing.T) {
	t.Parallel()

	r := sampleReport()
	r.Diagnostics = r.Diagnostics[:2]
	want := strings.Join([]string{
		"project: chat-app",
		"score: 82",
		"label: Needs attention",
		"summary[1]{errors,warnings,infos,files}:",
		"  2,0,0,3",
		"diagnostics[2]{rule,severity,category,file,line,column,message}:",
		"  security/missing-arg-validators,error,Security,convex/messages.ts,4,21,Public query `list` has no argument validators",
		"  perf/unbounded-collect,error,Performance,convex/messages.ts,6,18,Unbounded `.collect()` call",
	}, "\n")
	assert.Equal(t, want, EncodeTOON(r))
}

func TestEncodeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", `""`},
		{"simple", "hello", "hello"},
		{"leading space", " hello", `" hello"`},
		{"newline", "a\nb", `"a\nb"`},
		{"true keyword", "true", `"true"`},
		{"null keyword", "null", `"null"`},
		{"integer", "42", "42"},
		{"comma", "a,b", `"a,b"`},
		{"colon", "a:b", `"a:b"`},
		{"quote", `a"b`, `"a\"b"`},
		{"dash prefix", "-foo", `"-foo"`},
		{"rule id", "perf/unbounded-collect", "perf/unbounded-collect"},
		{"message with backticks", "Handler `list` is 60 lines long", "Handler `list` is 60 lines long"},
		{"message with colon", "Hardcoded secret detected: sk_live_...", `"Hardcoded secret detected: sk_live_..."`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := encodeValue(tt.in); got != tt.want {
				t.Errorf("encodeValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	t.Parallel()

	for _, format := range Formats {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, sampleReport(), Options{Format: format}), format)
		assert.NotEmpty(t, buf.String(), format)
	}

	var buf bytes.Buffer
	err := Write(&buf, sampleReport(), Options{Format: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestWriteScore(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteScore(&buf, sampleReport()))
	assert.Equal(t, "82\n", buf.String())
}

func TestColorEnabled(t *testing.T) {
	t.Parallel()

	assert.False(t, ColorEnabled(&bytes.Buffer{}, false))
	assert.False(t, ColorEnabled(&bytes.Buffer{}, true))
}
