package cli

import (
	"log/slog"
	"os"

	"github.com/me/tessera/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking TESSERA_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("TESSERA_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the tessera CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tessera",
		Short: "tessera: image-processing workflow orchestration",
		Long:  "tessera creates, submits, and monitors image-processing workflows on a batch-execution backend.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "tessera server URL (or TESSERA_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newCreateCmd(),
		newListCmd(),
		newSubmitCmd(),
		newResubmitCmd(),
		newStatusCmd(),
		newKillCmd(),
		newSetCmd(),
		newLogsCmd(),
		newHistoryCmd(),
	)

	return root
}
