package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atlas-specialty/underwrite-cli/internal/model"
	"github.com/atlas-specialty/underwrite-cli/internal/store"
)

var processConcurrency int

var processCmd = &cobra.Command{
	Use:   "process [case-id...]",
	Short: "Run the underwriting pipeline for cases",
	Long:  "Runs the pipeline for the named case ids, or for every pending case when none are given. Cases run concurrently up to --concurrency; one case failing does not stop the batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if !cmd.Flags().Changed("concurrency") && cfg.Batch.MaxConcurrentCases > 0 {
			processConcurrency = cfg.Batch.MaxConcurrentCases
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ids := args
		if len(ids) == 0 {
			pending, err := env.Store.ListCases(ctx, store.CaseFilter{Status: model.CaseStatusPending})
			if err != nil {
				return err
			}
			for _, rec := range pending {
				ids = append(ids, rec.ID)
			}
			zap.L().Info("processing pending cases", zap.Int("count", len(ids)))
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(processConcurrency)
		for _, id := range ids {
			g.Go(func() error {
				if err := env.Pipeline.Start(gctx, id); err != nil {
					zap.L().Error("case failed",
						zap.String("case_id", id),
						zap.Error(err))
				}
				return nil
			})
		}
		return g.Wait()
	},
}

func init() {
	processCmd.Flags().IntVar(&processConcurrency, "concurrency", 5, "max cases processed at once")
	rootCmd.AddCommand(processCmd)
}
