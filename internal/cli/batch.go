package cli

import (
	"fmt"
	"io"

	"github.com/me/choppy/internal/app"
	"github.com/me/choppy/internal/batch"
	"github.com/me/choppy/pkg/model"
	"github.com/spf13/cobra"
)

type batchFlags struct {
	projectName string
	dryRun      bool
	labels      []string
	server      string
	force       bool
	username    string
}

func (f *batchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.projectName, "project-name", "", "Project directory to create for the rendered samples (required)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Render every sample without submitting")
	cmd.Flags().StringArrayVarP(&f.labels, "label", "l", nil, "Label key:value added to every workflow (repeatable)")
	cmd.Flags().StringVarP(&f.server, "server", "S", "localhost", "Cromwell server name from the config file")
	cmd.Flags().BoolVarP(&f.force, "force", "f", false, "Reuse an existing project directory")
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "Username label (default from config)")
	cmd.MarkFlagRequired("project-name")
}

func newBatchCmd() *cobra.Command {
	var f batchFlags
	cmd := &cobra.Command{
		Use:   "batch <app_name> <samples>",
		Short: "Submit one workflow per sample of an installed app",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(args[0])
			if err != nil {
				return err
			}
			return runBatch(cmd, a, args[1], f)
		},
	}
	f.register(cmd)
	return cmd
}

func newTestAppCmd() *cobra.Command {
	var f batchFlags
	cmd := &cobra.Command{
		Use:   "testapp <app_dir> <samples>",
		Short: "Run an app from a local directory, for app development",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(args[0])
			if err != nil {
				return err
			}
			return runBatch(cmd, a, args[1], f)
		},
	}
	f.register(cmd)
	return cmd
}

func runBatch(cmd *cobra.Command, a *app.App, samplesPath string, f batchFlags) error {
	ctx := cmd.Context()
	o, closeStore := newOrchestrator(ctx)
	defer closeStore()

	username := f.username
	if username == "" {
		username = cfg.General.Username
	}

	outcome, err := o.Run(ctx, batch.Options{
		ProjectName: f.projectName,
		AppDir:      a.Dir,
		AppName:     a.Name,
		SamplesPath: samplesPath,
		Labels:      f.labels,
		Server:      f.server,
		Username:    username,
		DryRun:      f.dryRun,
		Force:       f.force,
	})
	if err != nil {
		return err
	}
	printOutcome(cmd.OutOrStdout(), outcome)
	return nil
}

func printOutcome(w io.Writer, o *model.BatchOutcome) {
	verb := "Submitted"
	if o.DryRun {
		verb = "Prepared"
	}
	fmt.Fprintf(w, "Batch %s (%s)\n", o.ID, o.ProjectDir)
	fmt.Fprintf(w, "  %s: %d\n", verb, len(o.Succeeded))
	fmt.Fprintf(w, "  Failed:    %d\n", len(o.Failed))
	for _, f := range o.Failed {
		fmt.Fprintf(w, "    - %s: %s\n", f.Record.SampleID(), f.Err)
	}
	if o.SubmittedManifest != "" {
		fmt.Fprintf(w, "  Successful samples: %s\n", o.SubmittedManifest)
	}
	if o.FailedManifest != "" {
		fmt.Fprintf(w, "  Failed samples:     %s\n", o.FailedManifest)
	}
}
