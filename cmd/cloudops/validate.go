package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration validation successful: %s\n", root.configPath)
			for _, op := range cfg.Operations {
				fmt.Fprintf(out, "  %s/%s timeout=%ds interval=%ds\n",
					op.Type, op.Name, op.TimeoutSeconds, op.PollingIntervalSeconds)
			}
			return nil
		},
	}
}
