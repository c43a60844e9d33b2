package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Copy so API keys never reach stdout.
		redacted := *cfg
		redacted.Providers = nil
		for _, p := range cfg.Providers {
			if p.Key != "" {
				p.Key = "[redacted]"
			}
			redacted.Providers = append(redacted.Providers, p)
		}

		out, err := yaml.Marshal(redacted)
		if err != nil {
			return eris.Wrap(err, "marshal config")
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
