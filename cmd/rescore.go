package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	rescoreRefreshToken string
	rescoreConcurrency  int
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Re-score every lead of an organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		token, err := refreshToken(rescoreRefreshToken)
		if err != nil {
			return err
		}
		if rescoreConcurrency > 0 {
			cfg.Rescore.Concurrency = rescoreConcurrency
		}

		env, err := initEnv(ctx, "rescore")
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Rescorer.Run(ctx, token)
		if err != nil {
			return eris.Wrap(err, "rescore")
		}
		return printJSON(cmd.OutOrStdout(), summary)
	},
}

func init() {
	rescoreCmd.Flags().StringVar(&rescoreRefreshToken, "refresh-token", "", "CRM OAuth refresh token (or LEADSCORE_REFRESH_TOKEN)")
	rescoreCmd.Flags().IntVar(&rescoreConcurrency, "concurrency", 0, "parallel leads (default from config)")
	rootCmd.AddCommand(rescoreCmd)
}
