package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/freeze-risk-map/internal/invalidation"
	"github.com/mohammed-shakir/freeze-risk-map/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/freeze-risk-map/internal/invalidation/publisher"
)

// newRefreshCmd announces a reload of the CARTO table so every serving
// instance drops its cached results.
func newRefreshCmd(a *app) *cobra.Command {
	var (
		version  uint64
		truncate bool
		table    string
	)
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Publish a dataset refresh event to retire cached results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if table == "" {
				table = a.cfg.CartoTable
			}
			if version == 0 {
				version = uint64(time.Now().Unix())
			}
			op := invalidation.OpRefresh
			if truncate {
				op = invalidation.OpTruncate
			}
			source, _ := os.Hostname()

			p, err := publisher.New(kafkaconsumer.SplitCSV(a.cfg.Invalidation.Brokers), a.cfg.Invalidation.Topic)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			part, off, err := p.Publish(invalidation.Event{Version: version, Op: op, Table: table, Source: source})
			if err != nil {
				return err
			}
			a.log.Info("refresh published", "table", table, "version", version, "partition", part, "offset", off)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "published %s %s v%d to %s[%d]@%d\n", op, table, version, a.cfg.Invalidation.Topic, part, off)
			return err
		},
	}
	cmd.Flags().Uint64Var(&version, "version", 0, "refresh version; defaults to the current unix time")
	cmd.Flags().BoolVar(&truncate, "truncate", false, "announce a truncate instead of a refresh")
	cmd.Flags().StringVar(&table, "table", "", "table to refresh, defaults to CARTO_TABLE")
	return cmd
}
