package main

import (
	"github.com/spf13/cobra"

	"github.com/krisarmstrong/dhcpd-go/pkg/config"
	"github.com/krisarmstrong/dhcpd-go/pkg/logging"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config.yaml>",
	Short: "Check a configuration file without binding a socket",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}

	rng, err := cfg.NewRange()
	if err != nil {
		return err
	}

	logging.Info("config OK")
	logging.Info("  listen:      %s", cfg.Listen)
	logging.Info("  server id:   %v", cfg.ServerIP)
	logging.Info("  pool:        %v - %v (%d addresses)", cfg.PoolStart, cfg.PoolEnd, rng.Size())
	logging.Info("  subnet mask: %v", cfg.SubnetMask)
	logging.Info("  lease time:  %v", cfg.LeaseTime)
	if cfg.Router != nil {
		logging.Info("  router:      %v", cfg.Router)
	}
	for _, dns := range cfg.DNS {
		logging.Info("  dns:         %v", dns)
	}
	return nil
}
