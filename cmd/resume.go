package main

import (
	"github.com/spf13/cobra"

	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <case-id> <step>",
	Short: "Re-run a case from a named step",
	Long:  "Re-executes the pipeline from the named step forward, reusing the stored outputs of earlier steps. Steps: extraction, industry_code, base_rate, revenue_estimate, base_premium, premium_modifiers, authority_check, coverage_details, risk_assessment, response_email.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Pipeline.ResumeFrom(ctx, args[0], model.Step(args[1]))
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
