package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/krisarmstrong/dhcpd-go/pkg/capture"
	"github.com/krisarmstrong/dhcpd-go/pkg/config"
	"github.com/krisarmstrong/dhcpd-go/pkg/lease"
	"github.com/krisarmstrong/dhcpd-go/pkg/logging"
	"github.com/krisarmstrong/dhcpd-go/pkg/metrics"
	"github.com/krisarmstrong/dhcpd-go/pkg/server"
	"github.com/krisarmstrong/dhcpd-go/pkg/storage"
)

var (
	serveDebugLevel int
	serveNoColor    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve <config.yaml>",
	Short: "Run the DHCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&serveDebugLevel, "debug", "d", 0, "debug level (0-3)")
	serveCmd.Flags().BoolVar(&serveNoColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logging.InitColors(!serveNoColor)
	logging.SetLevel(serveDebugLevel)

	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}

	rng, err := cfg.NewRange()
	if err != nil {
		return err
	}
	shared := lease.NewShared(rng)

	var sink *capture.Sink
	if cfg.PcapLog != "" {
		sink, err = capture.Open(cfg.PcapLog)
		if err != nil {
			return err
		}
		defer sink.Close()
		logging.Info("writing pcap trace to %s", cfg.PcapLog)
	}

	var store *storage.Storage
	if cfg.Storage != "" {
		store, err = storage.Open(cfg.Storage)
		if err != nil {
			logging.Warning("run history disabled: %v", err)
		} else {
			defer store.Close()
		}
	}

	if cfg.MetricsListen != "" {
		metrics.Serve(cfg.MetricsListen)
		logging.Info("metrics on http://%s/metrics", cfg.MetricsListen)
	}

	handler := server.NewHandler(shared, cfg.ReplyOptions())
	srv := server.New(cfg.Listen, handler, cfg.Workers, sink)

	started := time.Now()
	if err := srv.Start(); err != nil {
		return err
	}
	logging.Info("pool %v - %v, server id %v", cfg.PoolStart, cfg.PoolEnd, cfg.ServerIP)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logging.Info("received %v, shutting down", sig)

	srv.Stop()

	if store != nil {
		counters := srv.Snapshot()
		var leasesUp int
		shared.Do(func(r *lease.Range) { leasesUp = r.UsedCount() })

		rec := storage.RunRecord{
			StartedAt: started,
			Duration:  time.Since(started),
			Listen:    cfg.Listen,
			PoolStart: cfg.PoolStart.String(),
			PoolEnd:   cfg.PoolEnd.String(),
			Offers:    counters.Offers,
			Acks:      counters.Acks,
			Naks:      counters.Naks,
			Drops:     counters.Drops,
			LeasesUp:  leasesUp,
		}
		if err := store.AddRun(rec); err != nil {
			logging.Warning("could not record run: %v", err)
		}
	}

	fmt.Println("bye")
	return nil
}
