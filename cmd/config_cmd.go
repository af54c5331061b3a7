package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-scoring/internal/config"
)

const redacted = "<redacted>"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML with secrets redacted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := yaml.Marshal(redact(*cfg))
		if err != nil {
			return eris.Wrap(err, "config show")
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <mode>",
	Short: "Check the configuration for serve, ingest, score, rescore or history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(args[0]); err != nil {
			return err
		}
		cmd.Println("ok")
		return nil
	},
}

// redact blanks credentials so the config can be shared safely.
func redact(c config.Config) config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&c.Zoho.ClientSecret)
	mask(&c.OpenAI.Key)
	mask(&c.Anthropic.Key)
	mask(&c.Vector.Pinecone.APIKey)
	mask(&c.Vector.Weaviate.APIKey)
	if c.Store.Driver == "postgres" {
		mask(&c.Store.DatabaseURL)
	}
	return c
}

func init() {
	configCmd.AddCommand(configShowCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
