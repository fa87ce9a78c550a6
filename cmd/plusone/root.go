package main

import (
	"github.com/spf13/cobra"

	"github.com/plusone-ai/plusone/internal/config"
	"github.com/plusone-ai/plusone/internal/observability"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "plusone",
		Short: "Real-time meeting transcription with a proactive monitor",
		Long: `plusone joins a meeting (by dialing into it or capturing local audio),
transcribes it live, and periodically analyzes the transcript against your
knowledge library to surface relevant context, conflicts, and tasks.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newCallCmd())
	root.AddCommand(newMeetingCmd())
	return root
}

// loadConfig loads configuration and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	return cfg, nil
}
