package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/phobologic/convex-doctor/internal/rules"
)

type ruleInfo struct {
	ID       string  `json:"id"`
	Category string  `json:"category"`
	Weight   float64 `json:"weight"`
	Help     string  `json:"help"`
}

func newRulesCmd(stdout io.Writer) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List every rule convex-doctor checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(stdout, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog as JSON")
	return cmd
}

func runRules(w io.Writer, asJSON bool) error {
	all := rules.All()
	infos := make([]ruleInfo, 0, len(all))
	for _, r := range all {
		infos = append(infos, ruleInfo{
			ID:       r.ID(),
			Category: string(r.Category()),
			Weight:   r.Category().Weight(),
			Help:     r.Help(),
		})
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RULE\tCATEGORY\tWEIGHT")
	for _, r := range infos {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%.1f\n", r.ID, r.Category, r.Weight)
	}
	return tw.Flush()
}
