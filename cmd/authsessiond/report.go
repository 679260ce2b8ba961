package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/authsession"
)

// NewReportCmd creates the report subcommand, which prints the security
// posture of the effective configuration as JSON.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the security posture of the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			engineCfg, err := cfg.engineConfig()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(authsession.BuildSecurityReport(engineCfg))
		},
	}
	return cmd
}
