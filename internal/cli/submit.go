package cli

import (
	"fmt"
	"os"

	"github.com/me/choppy/internal/cromwell"
	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var (
		depsPath string
		labels   []string
		server   string
		username string
		validate bool
	)

	cmd := &cobra.Command{
		Use:   "submit <workflow.wdl> <inputs.json>",
		Short: "Submit a single workflow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			wdl, inputs := args[0], args[1]

			if validate {
				if err := validateInputs(cmd, wdl, inputs); err != nil {
					return err
				}
			}

			// A directory is zipped first; anything else is sent as is.
			if depsPath != "" {
				info, err := os.Stat(depsPath)
				if err != nil {
					return fmt.Errorf("dependencies: %w", err)
				}
				if info.IsDir() {
					art, err := newPackager().Package(ctx, depsPath)
					if err != nil {
						return err
					}
					defer art.Cleanup()
					depsPath = art.Path
				}
			}

			id, err := cromwell.NewDispatcher(cfg, logger).Submit(ctx, wdl, inputs, depsPath, labels, username, server)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Workflow submitted: %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&depsPath, "dependencies", "d", "", "Task directory or zip file of imported WDL files")
	cmd.Flags().StringArrayVarP(&labels, "label", "l", nil, "Label key:value (repeatable)")
	cmd.Flags().StringVarP(&server, "server", "S", "localhost", "Cromwell server name from the config file")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username label (default from config)")
	cmd.Flags().BoolVar(&validate, "validate", false, "Validate the inputs before submitting")
	return cmd
}
