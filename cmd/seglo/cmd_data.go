package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/seglo/internal/dataset"
	"github.com/ayusman/seglo/internal/labels"
	"github.com/ayusman/seglo/internal/prompt"
	"github.com/ayusman/seglo/internal/scaler"
	"github.com/ayusman/seglo/internal/store"
)

func newCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of samples in every class directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := dataset.NewStore(a.cfg.Paths.DataDir).Counts()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range counts {
				fmt.Fprintf(out, "%s: %d samples\n", c.Dir, c.Samples)
			}
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var label, hand string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every sample of one gesture and hand type",
		Long: `Removes the <label>_<hand> class directory. The label map is left unchanged
so indices of the remaining gestures stay stable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			p := prompt.New(cmd.InOrStdin(), out)

			var err error
			if label == "" {
				if label, err = p.Ask("Enter the gesture name to delete: "); err != nil {
					return err
				}
			}
			if hand == "" {
				if hand, err = p.Ask("Enter hand type (left/right/both): "); err != nil {
					return err
				}
			}
			h, err := dataset.ParseHand(hand)
			if err != nil {
				return err
			}

			dir, err := dataset.NewStore(a.cfg.Paths.DataDir).DeleteClass(labels.Normalize(label), h)
			switch {
			case errors.Is(err, dataset.ErrNotFound):
				fmt.Fprintf(out, "Folder not found: %s\n", dir)
				return nil
			case err != nil:
				return err
			}
			a.logger.Info("class deleted", zap.String("dir", dir))
			fmt.Fprintf(out, "Deleted folder: %s\n", dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&label, "label", "l", "", "gesture name")
	cmd.Flags().StringVar(&hand, "hand", "", "hand type: left, right or both")
	return cmd
}

func newExportScalerCmd(a *app) *cobra.Command {
	var dst string
	cmd := &cobra.Command{
		Use:   "export-scaler",
		Short: "Write the scaler mean and std for the mobile app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dst == "" {
				dst = a.cfg.ScalerStatsPath()
			}
			sc, err := scaler.Load(a.cfg.ScalerPath())
			if err != nil {
				return err
			}
			if err := sc.ExportStats(dst); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scaler stats saved to %s\n", dst)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dst, "out", "o", "", "output path; models_dir/scaler_stats.json when empty")
	return cmd
}

func newLabelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "Print the label map in index order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := labels.Load(a.cfg.Paths.LabelMap)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(m) == 0 {
				fmt.Fprintln(out, "No labels yet. Record one with: seglo collect")
				return nil
			}
			for _, name := range m.Names() {
				fmt.Fprintf(out, "%d: %s\n", m[name], name)
			}
			return nil
		},
	}
}

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List training runs and their evaluations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.Runs().List(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No training runs recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tCLASSES\tSAMPLES\tEPOCHS\tBEST VAL ACC\tEVALUATIONS")
			for _, r := range runs {
				evals, err := st.Evaluations().ListByRun(r.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%.4f\t%s\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime), r.Status,
					r.Classes, r.Samples, r.Epochs, r.BestValAccuracy, evalSummary(evals))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show; 0 for all")
	return cmd
}

// evalSummary lists accuracy and macro F1 of each evaluation, newest first.
func evalSummary(evals []*store.Evaluation) string {
	if len(evals) == 0 {
		return "-"
	}
	parts := make([]string, len(evals))
	for i, e := range evals {
		parts[i] = fmt.Sprintf("acc=%.4f f1=%.4f", e.Accuracy, e.MacroF1)
	}
	return strings.Join(parts, ", ")
}
