package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mizuno-h/cardwatch/internal/cli"
	"github.com/mizuno-h/cardwatch/internal/gmailsource"
)

func authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with Gmail",
		Long: `Run the interactive OAuth2 flow against Gmail and save the resulting
token for later scans. Requires gmail.client_id and gmail.client_secret
in the config file.`,
		RunE: runAuth,
	}
}

func runAuth(cmd *cobra.Command, _ []string) error {
	cfg := oauthConfig()
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		slog.Error(cli.FormatError("gmail.client_id and gmail.client_secret must be configured"))
		slog.Info("Create OAuth2 credentials at https://console.cloud.google.com/apis/credentials and add them to your config file.")
		return nil
	}

	if _, err := gmailsource.AuthenticateInteractive(cmd.Context(), cfg); err != nil {
		return err
	}

	slog.Info(cli.FormatSuccess("Authenticated with Gmail. You can now run 'cardwatch scan'."))
	return nil
}
