package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/atlas-specialty/underwrite-cli/internal/model"
	"github.com/atlas-specialty/underwrite-cli/internal/store"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Inspect and review underwriting cases",
}

var (
	listStatus string
	listSender string
	listLimit  int
)

var casesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		recs, err := st.ListCases(ctx, store.CaseFilter{
			Status: model.CaseStatus(listStatus),
			Sender: listSender,
			Limit:  listLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tCLIENT\tBIC\tPREMIUM\tRISK\tRECEIVED")
		for _, rec := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
				rec.ID, rec.Status, rec.ClientName, rec.BICCode,
				rec.FinalPremium, rec.RiskLevel,
				rec.ReceivedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var casesShowCmd = &cobra.Command{
	Use:   "show <case-id>",
	Short: "Print the full case record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.GetCase(ctx, args[0])
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal case")
		}
		fmt.Println(string(out))
		return nil
	},
}

var (
	reviewBy    string
	reviewNotes string
)

var casesReviewCmd = &cobra.Command{
	Use:   "review <case-id>",
	Short: "Record a human review decision",
	Long:  "Marks a gated case as reviewed: records the reviewer and notes and moves the case to completed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.GetCase(ctx, args[0])
		if err != nil {
			return err
		}
		if rec.Status != model.CaseStatusHumanReview {
			return eris.Errorf("case %s is %s, not %s", rec.ID, rec.Status, model.CaseStatusHumanReview)
		}

		now := time.Now().UTC()
		rec.ReviewedBy = reviewBy
		rec.ReviewedAt = &now
		rec.Notes = reviewNotes
		rec.Status = model.CaseStatusCompleted
		return st.UpdateCase(ctx, rec)
	},
}

func init() {
	casesListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	casesListCmd.Flags().StringVar(&listSender, "sender", "", "filter by sender")
	casesListCmd.Flags().IntVar(&listLimit, "limit", 50, "max cases returned")

	casesReviewCmd.Flags().StringVar(&reviewBy, "by", "", "reviewer name")
	casesReviewCmd.Flags().StringVar(&reviewNotes, "notes", "", "review notes")
	_ = casesReviewCmd.MarkFlagRequired("by")

	casesCmd.AddCommand(casesListCmd, casesShowCmd, casesReviewCmd)
	rootCmd.AddCommand(casesCmd)
}
