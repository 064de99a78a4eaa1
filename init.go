package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/convex-doctor/internal/config"
	"github.com/phobologic/convex-doctor/internal/rules"
)

const (
	sentinelStart = "# >>> convex-doctor rules >>>"
	sentinelEnd   = "# <<< convex-doctor rules <<<"
)

// newInitCmd implements `convex-doctor init`, which writes (or updates) a
// managed rule reference block in convex-doctor.toml.
func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write or refresh convex-doctor.toml",
		Long: `Write a convex-doctor.toml to the project at path. The rule list is wrapped
in sentinel comments so it can be refreshed in place on later runs without
touching your settings. Creates the file with default settings if it does
not exist.

path defaults to the current directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			return runInit(root, dryRun, stdout, stderr)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	return cmd
}

func runInit(root string, dryRun bool, stdout, stderr io.Writer) error {
	path := filepath.Join(root, config.FileName)

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	content := string(existing)
	if len(existing) == 0 {
		content = defaultConfig()
	}
	updated := applySection(content, generateSection())

	if dryRun {
		_, _ = fmt.Fprint(stdout, updated)
		return nil
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote %s\n", path)
	return nil
}

func defaultConfig() string {
	quoted := make([]string, len(config.DefaultIgnore))
	for i, p := range config.DefaultIgnore {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return `# convex-doctor configuration

[rules]
# "perf/unbounded-collect" = "off"

[ignore]
files = [` + strings.Join(quoted, ", ") + `]

[ci]
# Fail when the score drops below this value. 0 disables the check.
fail_below = 0
`
}

// generateSection returns the sentinel-wrapped list of every rule ID, each
// commented out so the block never changes what runs.
func generateSection() string {
	var b strings.Builder
	b.WriteString(sentinelStart + "\n")
	b.WriteString("# Every rule is enabled by default. To disable one, copy its line\n")
	b.WriteString("# under [rules] and uncomment it. This block is rewritten by\n")
	b.WriteString("# `convex-doctor init`.\n")
	for _, r := range rules.All() {
		if r.ID() == rules.FileParseError {
			continue
		}
		fmt.Fprintf(&b, "# %q = \"off\"\n", r.ID())
	}
	b.WriteString(sentinelEnd)
	return b.String()
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
