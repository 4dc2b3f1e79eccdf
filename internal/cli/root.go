package cli

import (
	"log/slog"

	"github.com/me/choppy/internal/config"
	"github.com/me/choppy/internal/logging"
	"github.com/spf13/cobra"
)

// Version is the choppy release reported by `choppy version`.
var Version = "0.1.0"

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	cfg    *config.Config
)

// NewRootCmd creates the root cobra command for the choppy CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "choppy",
		Short: "choppy: batch WDL submission to Cromwell",
		Long:  "choppy validates workflow inputs, renders app templates for every sample in a samples file, and submits the results to a Cromwell server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			cfg = c

			level := flagLogLevel
			if level == "" {
				level = cfg.General.LogLevel
			}
			if flagDebug {
				level = "debug"
			}
			format := flagLogFormat
			if format == "" {
				format = cfg.General.LogFormat
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(level), format, cmd.ErrOrStderr())
			logger.Debug("config loaded", "path", cfg.Path)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default $CHOPPY_CONFIG or ~/.choppy/choppy.yaml)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (text, json)")

	root.AddCommand(
		newBatchCmd(),
		newTestAppCmd(),
		newValidateCmd(),
		newSubmitCmd(),
		newQueryCmd(),
		newAbortCmd(),
		newLabelCmd(),
		newAppsCmd(),
		newConfigCmd(),
		newSamplesCmd(),
		newUploadCmd(),
		newDownloadCmd(),
		newListFilesCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)

	return root
}
