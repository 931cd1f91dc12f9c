// Package metrics exposes the daemon's Prometheus counters and the HTTP
// endpoint that serves them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts inbound messages by DHCP message type.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dhcpd_requests_total",
		Help: "Inbound DHCP messages by type.",
	}, []string{"type"})

	// ResponsesTotal counts replies sent by DHCP message type.
	ResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dhcpd_responses_total",
		Help: "DHCP replies sent by type.",
	}, []string{"type"})

	// DropsTotal counts datagrams dropped without a reply, by reason.
	DropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dhcpd_drops_total",
		Help: "Datagrams dropped without a reply, by reason.",
	}, []string{"reason"})

	// PoolExhausted counts DISCOVERs that found no free address.
	PoolExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dhcpd_pool_exhausted_total",
		Help: "DISCOVER messages that found the pool exhausted.",
	})

	// LeasesInUse tracks committed addresses.
	LeasesInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dhcpd_leases_in_use",
		Help: "Addresses currently committed to a client.",
	})
)

// Drop reasons
const (
	ReasonProtocol    = "protocol"
	ReasonOptionParse = "option_parse"
	ReasonUnhandled   = "unhandled"
	ReasonQueueFull   = "queue_full"
	ReasonSendError   = "send_error"
)

// Serve starts the metrics and health endpoint on addr. It returns the
// server so the caller can shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
