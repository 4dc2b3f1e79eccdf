package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/me/choppy/internal/cromwell"
	"github.com/spf13/cobra"
)

func newQueryCmd() *cobra.Command {
	var (
		server   string
		metadata bool
		labels   []string
	)

	cmd := &cobra.Command{
		Use:   "query [workflow_id]",
		Short: "Show a workflow's status or metadata, or find workflows by label",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			c, err := cromwell.NewDispatcher(cfg, logger).Client(server)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				id := args[0]
				if metadata {
					md, err := c.Metadata(ctx, id)
					if err != nil {
						return err
					}
					return printJSON(out, md)
				}
				st, err := c.Status(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Workflow: %s\n", st.ID)
				fmt.Fprintf(out, "  Status: %s\n", st.Status)
				printOrigin(cmd, id)
				return nil
			}

			if len(labels) == 0 {
				return errors.New("a workflow id or at least one --label filter is required")
			}
			filter, err := cromwell.ParseLabels(labels)
			if err != nil {
				return err
			}
			results, err := c.Query(ctx, filter)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(out, "No workflows found.")
				return nil
			}
			fmt.Fprintf(out, "%-36s  %-10s  %-20s  %s\n", "ID", "STATUS", "NAME", "SUBMITTED")
			for _, r := range results {
				fmt.Fprintf(out, "%-36s  %-10s  %-20s  %s\n", r.ID, r.Status, r.Name, ago(r.Submission))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&server, "server", "S", "localhost", "Cromwell server name from the config file")
	cmd.Flags().Bool("status", true, "Show the workflow status (default)")
	cmd.Flags().BoolVar(&metadata, "metadata", false, "Show the full workflow metadata")
	cmd.Flags().StringArrayVarP(&labels, "label", "L", nil, "Find workflows carrying label key:value (repeatable)")
	return cmd
}

// printOrigin adds the sample and batch a workflow came from when the
// history database knows it.
func printOrigin(cmd *cobra.Command, workflowID string) {
	st, err := openStore(cmd.Context())
	if err != nil {
		logger.Debug("history unavailable", "error", err)
		return
	}
	defer st.Close()
	rec, err := st.FindByWorkflowID(cmd.Context(), workflowID)
	if err != nil || rec == nil {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  Sample: %s (batch %s)\n", rec.SampleID, rec.BatchID)
}

func ago(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return humanize.Time(*t)
}

func newAbortCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "abort <workflow_id>",
		Short: "Abort a running workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cromwell.NewDispatcher(cfg, logger).Client(server)
			if err != nil {
				return err
			}
			st, err := c.Abort(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s: %s\n", st.ID, st.Status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&server, "server", "S", "localhost", "Cromwell server name from the config file")
	return cmd
}

func newLabelCmd() *cobra.Command {
	var (
		server string
		labels []string
	)
	cmd := &cobra.Command{
		Use:   "label <workflow_id>",
		Short: "Add or replace labels on a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(labels) == 0 {
				return errors.New("at least one --label is required")
			}
			m, err := cromwell.ParseLabels(labels)
			if err != nil {
				return err
			}
			c, err := cromwell.NewDispatcher(cfg, logger).Client(server)
			if err != nil {
				return err
			}
			resp, err := c.UpdateLabels(cmd.Context(), args[0], m)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Workflow %s labels:\n", resp.ID)
			for _, l := range cromwell.FormatLabels(resp.Labels) {
				fmt.Fprintf(out, "  %s\n", l)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&server, "server", "S", "localhost", "Cromwell server name from the config file")
	cmd.Flags().StringArrayVarP(&labels, "label", "l", nil, "Label key:value (repeatable)")
	return cmd
}
