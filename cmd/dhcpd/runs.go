package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/krisarmstrong/dhcpd-go/pkg/storage"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs <history.db>",
	Short: "Show recorded server runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum records to show")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	store, err := storage.Open(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListRuns(runsLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	fmt.Printf("%-4s %-20s %-10s %-22s %7s %7s %7s %7s\n",
		"ID", "STARTED", "DURATION", "POOL", "OFFERS", "ACKS", "NAKS", "DROPS")
	for _, rec := range records {
		fmt.Printf("%-4d %-20s %-10s %-22s %7d %7d %7d %7d\n",
			rec.ID,
			rec.StartedAt.Format("2006-01-02 15:04:05"),
			rec.Duration.Round(time.Second).String(),
			rec.PoolStart+"-"+rec.PoolEnd,
			rec.Offers, rec.Acks, rec.Naks, rec.Drops)
	}
	return nil
}
