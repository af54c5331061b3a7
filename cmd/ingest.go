package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var ingestRefreshToken string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Embed an organization's CRM contacts into its vector index",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		token, err := refreshToken(ingestRefreshToken)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Ingester.Run(ctx, token)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}
		return printJSON(cmd.OutOrStdout(), summary)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestRefreshToken, "refresh-token", "", "CRM OAuth refresh token (or LEADSCORE_REFRESH_TOKEN)")
	rootCmd.AddCommand(ingestCmd)
}
