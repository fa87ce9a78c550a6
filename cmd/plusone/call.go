package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// connectTimeout bounds the wait for Twilio's media stream; the IVR
// navigation alone takes half a minute with a passcode.
const connectTimeout = 2 * time.Minute

func newCallCmd() *cobra.Command {
	var passcode string
	var topic string
	var listenOnly bool

	cmd := &cobra.Command{
		Use:   "call <meeting-id>",
		Short: "Dial into a meeting and transcribe the call",
		Long: `Places an outbound call to the configured dial-in number, navigates
the conference IVR with the meeting ID (and passcode if given), then
transcribes the call audio until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := buildApp(cfg, true, listenOnly)
			if err != nil {
				return err
			}

			wsURL, err := mediaStreamURL(cfg)
			if err != nil {
				return err
			}

			a.serveHTTP()

			ctx := cmd.Context()
			callSid, err := a.dialer.StartCall(ctx, args[0], wsURL, passcode)
			if err != nil {
				a.shutdown()
				return err
			}

			endCall := func() {
				endCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := a.dialer.EndCall(endCtx, callSid); err != nil {
					a.logger.Warn().Err(err).Msg("Failed to end call")
				}
			}

			startCtx, cancel := context.WithTimeout(ctx, connectTimeout)
			defer cancel()
			if _, err := a.controller.Start(startCtx, topic); err != nil {
				endCall()
				a.shutdown()
				return err
			}

			a.logger.Info().Str("call_sid", callSid).Msg("In the meeting, transcribing")

			// Run until interrupted or the call drops on the far side.
			done := make(chan struct{})
			go func() {
				waitForShutdown()
				close(done)
			}()
			select {
			case <-done:
			case <-a.media.Stopped():
				a.logger.Info().Msg("Call ended by remote side")
			}

			endCall()
			a.shutdown()
			return nil
		},
	}

	cmd.Flags().StringVar(&passcode, "passcode", "", "meeting passcode, if required")
	cmd.Flags().StringVar(&topic, "topic", "", "topic used to name the caption file")
	cmd.Flags().BoolVar(&listenOnly, "listen-only", false, "never speak suggestions into the call")
	return cmd
}
