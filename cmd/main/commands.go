package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gdbrns/whatsapp-webhook-relay/pkg/auth"
)

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "WhatsApp to webhook relay",
		Long: `Relay bridges one WhatsApp session and a webhook backend.

Inbound chat messages are posted to WEBHOOK_URL and POST /send-message sends
text messages back through the session. Running without a subcommand serves.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.AddCommand(buildServeCmd(), buildTokenCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the relay HTTP server and WhatsApp session",
		Long: `Start the relay.

On first run the pairing QR code is printed to the terminal and served at
GET /session/qr. Credentials are kept under AUTH_STATE_DIR; delete it after a
logout to pair again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func buildTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for POST /send-message",
		Example: `  # Token without expiry for the backend service
  RELAY_JWT_SECRET=changeme relay token --subject backend

  # Token valid for one day
  relay token --subject backend --ttl 24h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.GenerateRelayToken(auth.LoadConfig().JWTSecretKey, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "backend", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime, 0 for no expiry")

	return cmd
}
