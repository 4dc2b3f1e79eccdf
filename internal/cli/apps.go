package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/me/choppy/internal/app"
	"github.com/me/choppy/internal/samples"
	"github.com/spf13/cobra"
)

func newAppsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List installed apps",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := app.List(cfg.General.AppRootDir)
			if err != nil {
				return fmt.Errorf("list apps: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintf(out, "No apps installed in %s.\n", cfg.General.AppRootDir)
				return nil
			}
			for _, n := range names {
				fmt.Fprintln(out, n)
			}
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	var (
		key   string
		value string
		del   bool
	)

	cmd := &cobra.Command{
		Use:   "config <app_name>",
		Short: "Show or edit an app's default template values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(args[0])
			if err != nil {
				return err
			}
			d, err := app.LoadDefaults(a)
			if err != nil {
				return err
			}

			switch {
			case del:
				if key == "" {
					return errors.New("--delete needs --key")
				}
				d.Delete(key)
				return d.Save()
			case cmd.Flags().Changed("value"):
				if key == "" {
					return errors.New("--value needs --key")
				}
				d.Set(key, parseValue(value))
				return d.Save()
			}

			var keys []string
			if key != "" {
				keys = []string{key}
			}
			return printJSON(cmd.OutOrStdout(), d.Show(keys...))
		},
	}

	cmd.Flags().Bool("show", false, "Print the defaults, or only --key (default action)")
	cmd.Flags().StringVar(&key, "key", "", "Default to set or delete")
	cmd.Flags().StringVar(&value, "value", "", "Value for --key; JSON literals (numbers, true, lists) are kept typed")
	cmd.Flags().BoolVar(&del, "delete", false, "Delete --key")
	return cmd
}

// parseValue keeps JSON literals typed and treats anything else as a string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func newSamplesCmd() *cobra.Command {
	var (
		checkFile string
		output    string
		noDefault bool
	)

	cmd := &cobra.Command{
		Use:   "samples <app_name>",
		Short: "Show the samples columns an app needs, or check a samples file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if checkFile != "" {
				header, err := samples.Header(checkFile)
				if err != nil {
					return err
				}
				missing, err := app.CheckHeader(a, header, noDefault)
				if err != nil {
					return err
				}
				if len(missing) > 0 {
					fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(missing, ", "))
					return fmt.Errorf("%s: %w", checkFile, ErrValidationFailed)
				}
				fmt.Fprintln(out, "Samples file is valid.")
				return nil
			}

			vars, err := app.Variables(a, noDefault)
			if err != nil {
				return err
			}
			if output != "" {
				if err := samples.WriteHeader(output, vars); err != nil {
					return err
				}
				fmt.Fprintf(out, "Samples template written to %s\n", output)
				return nil
			}
			fmt.Fprintln(out, strings.Join(vars, ","))
			return nil
		},
	}

	cmd.Flags().StringVar(&checkFile, "checkfile", "", "Check that a samples file has every needed column")
	cmd.Flags().StringVar(&output, "output", "", "Write a CSV header with the needed columns to this file")
	cmd.Flags().BoolVar(&noDefault, "no-default", false, "Leave out columns covered by the app defaults")
	return cmd
}
