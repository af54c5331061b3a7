package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-scoring/internal/model"
)

var (
	scorePayloadPath  string
	scoreLeadID       string
	scoreRefreshToken string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one lead and write the result to the CRM",
	Long:  "Scores a lead from a webhook payload file (--payload, '-' for stdin) or fetches it from the CRM by id (--lead-id).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if (scorePayloadPath == "") == (scoreLeadID == "") {
			return eris.New("score: exactly one of --payload or --lead-id is required")
		}

		var payload model.WebhookPayload
		if scorePayloadPath != "" {
			p, err := readPayload(cmd.InOrStdin(), scorePayloadPath)
			if err != nil {
				return err
			}
			payload = *p
		}
		if scoreRefreshToken != "" || payload.RefreshToken == "" {
			token, err := refreshToken(scoreRefreshToken)
			if err != nil {
				return err
			}
			payload.RefreshToken = token
		}

		env, err := initEnv(ctx, "score")
		if err != nil {
			return err
		}
		defer env.Close()

		if scoreLeadID != "" {
			lead, err := env.CRM.GetLead(ctx, payload.RefreshToken, scoreLeadID)
			if err != nil {
				return eris.Wrapf(err, "score: get lead %s", scoreLeadID)
			}
			if len(lead) == 0 {
				return eris.Errorf("score: lead %s not found", scoreLeadID)
			}
			payload.Data = []model.Record{lead}
		}

		outcome, err := env.Scorer.Run(ctx, payload)
		if err != nil {
			return eris.Wrap(err, "score")
		}
		return printJSON(cmd.OutOrStdout(), outcome)
	},
}

// readPayload decodes a webhook payload from path, or from stdin when path is "-".
func readPayload(stdin io.Reader, path string) (*model.WebhookPayload, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "score: open payload")
		}
		defer f.Close() //nolint:errcheck
		r = f
	}

	var p model.WebhookPayload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, eris.Wrap(err, "score: decode payload")
	}
	return &p, nil
}

func init() {
	scoreCmd.Flags().StringVar(&scorePayloadPath, "payload", "", "webhook payload JSON file ('-' for stdin)")
	scoreCmd.Flags().StringVar(&scoreLeadID, "lead-id", "", "CRM lead id to fetch and score")
	scoreCmd.Flags().StringVar(&scoreRefreshToken, "refresh-token", "", "CRM OAuth refresh token (overrides the payload)")
	rootCmd.AddCommand(scoreCmd)
}
