package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/garnizeh/bidflow/internal/negotiation"
	"github.com/garnizeh/bidflow/internal/repository/sqlstore"
	"github.com/garnizeh/bidflow/internal/scheduler"
)

func tickCmd() *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one auction scheduler pass and print its summary",
		Long: `Runs the same pass the server's scheduler runs on its timer: every open
auction whose end time has passed is closed into a negotiation with its
lowest bid, or expired when it has none. Safe to run while the server is up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			d, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			store := sqlstore.New(d, nil)
			s := scheduler.New(store, negotiation.NewAdvancer(store, nil, nil), nil, scheduler.Config{BatchSize: batch}, nil)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s.Tick(ctx))
		},
	}
	cmd.Flags().IntVar(&batch, "batch", scheduler.DefaultBatchSize, "maximum auctions to advance")
	return cmd
}
