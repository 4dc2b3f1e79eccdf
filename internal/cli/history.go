package cli

import (
	"fmt"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/me/choppy/pkg/model"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		project string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history [batch_id]",
		Short: "List past batch runs, or show one run's samples",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 1 {
				run, err := st.GetBatch(ctx, args[0])
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("batch %q not found", args[0])
				}
				fmt.Fprintf(out, "Batch:   %s\n", run.ID)
				fmt.Fprintf(out, "  Project: %s (%s)\n", run.ProjectName, run.ProjectDir)
				fmt.Fprintf(out, "  App:     %s\n", run.App)
				fmt.Fprintf(out, "  Server:  %s\n", run.Server)
				fmt.Fprintf(out, "  Created: %s\n", humanize.Time(run.CreatedAt))
				fmt.Fprintln(out, "  Samples:")
				for _, r := range run.Records {
					line := fmt.Sprintf("    - %s: %s", r.SampleID, r.State)
					if r.WorkflowID != "" {
						line += " " + r.WorkflowID
					}
					if r.Error != "" {
						line += " (" + r.Error + ")"
					}
					fmt.Fprintln(out, line)
				}
				return nil
			}

			opts := model.DefaultListOptions()
			opts.Limit = limit
			opts.Project = project
			runs, total, err := st.ListBatches(ctx, opts)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No batch runs found.")
				return nil
			}
			fmt.Fprintf(out, "%-36s  %-20s  %-20s  %5s  %6s  %s\n", "ID", "PROJECT", "APP", "OK", "FAILED", "CREATED")
			for _, r := range runs {
				ok := fmt.Sprint(r.Succeeded)
				if r.DryRun {
					ok += "*"
				}
				fmt.Fprintf(out, "%-36s  %-20s  %-20s  %5s  %6d  %s\n",
					r.ID, r.ProjectName, r.App, ok, r.Failed, humanize.Time(r.CreatedAt))
			}
			if total > len(runs) {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Only runs of this project")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the choppy version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "choppy %s (%s)\n", Version, runtime.Version())
		},
	}
}
