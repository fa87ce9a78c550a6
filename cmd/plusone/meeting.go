package main

import (
	"github.com/spf13/cobra"
)

func newMeetingCmd() *cobra.Command {
	var topic string

	cmd := &cobra.Command{
		Use:   "meeting",
		Short: "Transcribe a meeting from local audio",
		Long: `Captures the default microphone plus a loopback device (for the
remote side of a conference running on this machine), transcribes the
mix, and runs the monitor until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := buildApp(cfg, false, false)
			if err != nil {
				return err
			}

			a.serveHTTP()

			if _, err := a.controller.Start(cmd.Context(), topic); err != nil {
				a.shutdown()
				return err
			}
			a.logger.Info().Msg("Recording, press Ctrl-C to stop")

			waitForShutdown()
			a.shutdown()
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "topic used to name the caption file")
	return cmd
}
