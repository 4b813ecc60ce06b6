package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/cartosql"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/executor"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/router"
	"github.com/mohammed-shakir/freeze-risk-map/internal/palette"
)

func newFetchCmd(a *app) *cobra.Command {
	var (
		sf     selectionFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run the query against CARTO and print features per colour bucket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := sf.selection(a.cfg.CutoffRange)
			if err != nil {
				return err
			}
			prof, err := palette.LookupProfile(a.cfg.Profile)
			if err != nil {
				return err
			}
			fs, err := a.buildFetchStack(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer fs.close()

			q := cartosql.ForSelection(a.cfg.CartoTable, sel)
			fc, err := executor.Decode(cmd.Context(), fs.fetcher, q)
			if err != nil {
				return fmt.Errorf("%s: %w", executor.UserMessage(err), err)
			}
			s := router.Summarize(prof.Table, fc, sel)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "layer\t%d\n", s.Layer)
			if s.Cutoff != "" {
				fmt.Fprintf(tw, "cutoff\t%s\n", s.Cutoff)
			}
			fmt.Fprintf(tw, "features\t%d\n\n", s.Features)
			fmt.Fprintln(tw, "COLOR\tCOUNT\tRANGE")
			for _, b := range s.Buckets {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Color, b.Count, b.Label)
			}
			return tw.Flush()
		},
	}
	sf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}
