package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/cartosql"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
)

type selectionFlags struct {
	layer  int
	cutoff string
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.layer, "layer", int(model.DefaultLayer), "percentile layer: 10, 20, 50 or 80")
	cmd.Flags().StringVar(&f.cutoff, "cutoff", "", "only counties whose freeze date falls on or before YYYY-MM-DD")
}

func (f *selectionFlags) selection(rng model.DateRange) (model.FilterSelection, error) {
	p := model.PercentileLayer(f.layer)
	if !p.Valid() {
		return model.FilterSelection{}, fmt.Errorf("layer %d not one of 10|20|50|80", f.layer)
	}
	sel := model.DefaultSelection().WithPercentile(p)
	if f.cutoff == "" {
		return sel, nil
	}
	d, err := model.ParseDate(f.cutoff)
	if err != nil {
		return model.FilterSelection{}, err
	}
	if !rng.Contains(d) {
		return model.FilterSelection{}, fmt.Errorf("cutoff %s not in %s..%s", d, rng.Min, rng.Max)
	}
	return sel.WithCutoff(d), nil
}

func newSQLCmd(a *app) *cobra.Command {
	var sf selectionFlags
	cmd := &cobra.Command{
		Use:   "sql",
		Short: "Print the CARTO query for a layer and cutoff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := sf.selection(a.cfg.CutoffRange)
			if err != nil {
				return err
			}
			q := cartosql.ForSelection(a.cfg.CartoTable, sel)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), q.SQL)
			return err
		},
	}
	sf.register(cmd)
	return cmd
}
