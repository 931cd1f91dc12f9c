package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "v0.3.0"
	commit  = "dev"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "dhcpd",
	Short: "In-memory DHCPv4 server",
	Long: `dhcpd answers DHCPv4 bootstrap requests on the local link: it
listens on UDP port 67, allocates addresses from a configured pool and
replies with RFC 2131 offers and acknowledgements.

Lease state lives in memory for the lifetime of the process.`,
	Version: version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("dhcpd %s (commit: %s, built: %s)\n", version, commit, date))
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
