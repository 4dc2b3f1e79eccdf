package cli

import (
	"errors"
	"fmt"

	"github.com/me/choppy/internal/jsondoc"
	"github.com/me/choppy/internal/validator"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.wdl> <inputs.json>",
		Short: "Check an inputs document against the workflow's parameters",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateInputs(cmd, args[0], args[1])
		},
	}
}

// validateInputs prints every finding and fails with ErrValidationFailed
// when there are any. JSON syntax errors are printed with a caret.
func validateInputs(cmd *cobra.Command, wdl, inputs string) error {
	out := cmd.OutOrStdout()
	if err := jsondoc.CheckFile(inputs); err != nil {
		var se *jsondoc.SyntaxError
		if errors.As(err, &se) {
			fmt.Fprint(out, se.Diagnostic())
		}
		return fmt.Errorf("%s: %w", inputs, err)
	}

	errs, err := validator.ValidateFiles(cmd.Context(), newExtractor(), wdl, inputs, validator.OSFS{})
	if err != nil {
		return err
	}
	if len(errs) == 0 {
		fmt.Fprintln(out, "Inputs are valid.")
		return nil
	}
	for _, e := range errs {
		fmt.Fprintln(out, e)
	}
	return fmt.Errorf("%s: %d problem(s): %w", inputs, len(errs), ErrValidationFailed)
}
