package main

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server without starting a session",
		Long: `Starts the HTTP API, transcript websocket, and telephony stream
endpoint. Sessions are then controlled over the API (POST /api/start,
POST /api/stop). Uses telephony audio when Twilio credentials are
configured, local capture otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := buildApp(cfg, cfg.TelephonyConfigured(), false)
			if err != nil {
				return err
			}

			a.serveHTTP()
			waitForShutdown()
			a.logger.Info().Msg("Shutting down")
			a.shutdown()
			return nil
		},
	}
}
