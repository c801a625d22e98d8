package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sebas/towerline/internal/callmgr/config"
)

var (
	cfg *config.Config

	flagAPIAddr     string
	flagLogLevel    string
	flagNodeID      string
	flagProfilePath string
	flagDomain      string
	flagDialTimeout time.Duration
	flagSIPGateway  string
)

func Execute() error {
	root := &cobra.Command{
		Use:   "towerline",
		Short: "Multi-endpoint call origination manager",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Default()
			cfg.ApplyEnv()
			if cmd.Flags().Changed("api-addr") {
				cfg.APIAddr = flagAPIAddr
			}
			if cmd.Flags().Changed("loglevel") {
				cfg.LogLevel = flagLogLevel
			}
			if cmd.Flags().Changed("node-id") {
				cfg.NodeID = flagNodeID
			}
			if cmd.Flags().Changed("profile") {
				cfg.ProfilePath = flagProfilePath
			}
			if cmd.Flags().Changed("domain") {
				cfg.Domain = flagDomain
			}
			if cmd.Flags().Changed("dial-timeout") {
				cfg.DialTimeout = flagDialTimeout
			}
			if cmd.Flags().Changed("sip-gateway") {
				cfg.SIPGateway = flagSIPGateway
			}
		},
	}

	root.PersistentFlags().StringVar(&flagAPIAddr, "api-addr", ":8080", "HTTP API listen address")
	root.PersistentFlags().StringVar(&flagLogLevel, "loglevel", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagNodeID, "node-id", "towerline-0", "node identifier in emitted events")
	root.PersistentFlags().StringVar(&flagProfilePath, "profile", "resources/config/profile.yaml", "candidate profile path")
	root.PersistentFlags().StringVar(&flagDomain, "domain", "ps", "domain selection mode (ps, cs, off)")
	root.PersistentFlags().DurationVar(&flagDialTimeout, "dial-timeout", 30*time.Second, "per-attempt dial timeout")
	root.PersistentFlags().StringVar(&flagSIPGateway, "sip-gateway", "", "SIP gateway host (enables the SIP backend)")

	root.AddCommand(serveCmd(), checkCmd())
	return root.Execute()
}
