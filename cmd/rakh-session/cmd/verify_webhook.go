package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/adeilh/go-rakh-session/webhooks"
)

func newVerifyWebhookCmd(load configLoader) *cobra.Command {
	var (
		header    string
		tolerance time.Duration
	)
	cmd := &cobra.Command{
		Use:   "verify-webhook [payload-file]",
		Short: "Verify a webhook delivery and print its event",
		Long: `Verify the signature header of a webhook body read from a file or stdin.

Example:
  rakh-session verify-webhook body.json --header "t=1626125972272, v1=80f7ab..."`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireWebhookSecret(); err != nil {
				return err
			}
			if header == "" {
				return errors.New("--header is required")
			}
			if !cmd.Flags().Changed("tolerance") {
				tolerance = cfg.WebhookTolerance()
			}

			var payload []byte
			if len(args) == 1 && args[0] != "-" {
				payload, err = os.ReadFile(args[0])
			} else {
				payload, err = readInput(cmd, nil)
			}
			if err != nil {
				return err
			}

			verifier := webhooks.NewVerifier(webhooks.WithTolerance(tolerance), webhooks.WithLogger(logger))
			event, err := verifier.ConstructEvent(payload, header, cfg.WebhookSecret)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(event)
		},
	}
	cmd.Flags().StringVar(&header, "header", "", "value of the "+webhooks.SignatureHeader+" header")
	cmd.Flags().DurationVar(&tolerance, "tolerance", webhooks.DefaultTolerance, "maximum signature age")
	return cmd
}
