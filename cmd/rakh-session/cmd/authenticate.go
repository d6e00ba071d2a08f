package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adeilh/go-rakh-session/auth"
	"github.com/adeilh/go-rakh-session/usermanagement"
)

func newAuthenticateCmd(load configLoader) *cobra.Command {
	var (
		includeExpired bool
		refresh        bool
		organizationID string
	)
	cmd := &cobra.Command{
		Use:   "authenticate [sealed]",
		Short: "Authenticate a sealed cookie against the identity platform",
		Long: `Verify a sealed session cookie with the client's key set and print the
authentication result. With --refresh the session is refreshed first and the
new sealed cookie is printed alongside the result.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireCookiePassword(); err != nil {
				return err
			}
			if err := cfg.RequireAPI(); err != nil {
				return err
			}
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			store, closeStore, err := openSharedStore(cmd.Context(), cfg.Cache)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			client, err := usermanagement.New(usermanagement.Options{
				BaseURL:     cfg.API.BaseURL,
				APIKey:      cfg.API.APIKey,
				ClientID:    cfg.API.ClientID,
				Timeout:     cfg.APITimeout(),
				SharedStore: store,
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			session, err := client.LoadSealedSession(cmd.Context(), strings.TrimSpace(string(input)), cfg.CookiePassword)
			if err != nil {
				return err
			}

			out := struct {
				Result        auth.AuthenticationResult `json:"result"`
				SealedSession string                    `json:"sealed_session,omitempty"`
			}{}
			if refresh {
				var opts []auth.RefreshOption
				if organizationID != "" {
					opts = append(opts, auth.WithOrganizationID(organizationID))
				}
				refreshed := session.Refresh(cmd.Context(), opts...)
				if !refreshed.Authenticated {
					return fmt.Errorf("refresh failed: %s", refreshed.Reason)
				}
				session = refreshed.Next
				out.SealedSession = refreshed.SealedSession
			}

			var authOpts []auth.AuthenticateOption
			if includeExpired {
				authOpts = append(authOpts, auth.WithIncludeExpired())
			}
			out.Result = session.Authenticate(authOpts...)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&includeExpired, "include-expired", false, "report claims of expired tokens")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refresh the session before authenticating")
	cmd.Flags().StringVar(&organizationID, "organization", "", "organization to switch to on refresh")
	return cmd
}
