package cli

import (
	"log/slog"
	"os"

	"github.com/me/opsched/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
	flagNoColor   bool

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking OPSCHED_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("OPSCHED_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the opsched CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "opsched",
		Short: "opsched - shop-floor operation scheduler",
		Long:  "opsched inspects and controls orders, operations and machines on an opsched server.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "opsched server URL (or OPSCHED_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
	root.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newSummaryCmd(),
		newOrdersCmd(),
		newOrderCmd(),
		newMachinesCmd(),
		newMachineCmd(),
		newStartCmd(),
		newCompleteCmd(),
		newHaltCmd(),
		newResumeCmd(),
		newForceCmd(),
		newUnforceCmd(),
		newEstimateCmd(),
		newPassCmd(),
		newEventsCmd(),
		newResetCmd(),
		newImportCmd(),
		newExportCmd(),
		newGenerateCmd(),
	)

	return root
}
