package config

import (
	"net"
	"strings"
	"testing"

	"github.com/krisarmstrong/dhcpd-go/pkg/dhcp"
	"github.com/krisarmstrong/dhcpd-go/pkg/lease"
)

const sampleConfig = `
listen: 0.0.0.0:67
server_ip: 192.168.56.1
pool:
  start: 192.168.56.3
  end: 192.168.56.255
subnet_mask: 255.255.255.0
router: 192.168.56.1
dns:
  - 8.8.8.8
  - 8.8.4.4
domain_name: lan
lease_seconds: 3600
workers: 8
metrics_listen: 127.0.0.1:9177
`

// TestParse tests a fully populated configuration
func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Listen != "0.0.0.0:67" {
		t.Errorf("Expected listen 0.0.0.0:67, got %s", cfg.Listen)
	}
	if !cfg.ServerIP.Equal(net.ParseIP("192.168.56.1")) {
		t.Errorf("Expected server ip 192.168.56.1, got %v", cfg.ServerIP)
	}
	if !cfg.PoolStart.Equal(net.ParseIP("192.168.56.3")) || !cfg.PoolEnd.Equal(net.ParseIP("192.168.56.255")) {
		t.Errorf("Unexpected pool bounds %v - %v", cfg.PoolStart, cfg.PoolEnd)
	}
	if len(cfg.DNS) != 2 {
		t.Errorf("Expected 2 DNS servers, got %d", len(cfg.DNS))
	}
	if cfg.LeaseTime != dhcp.Seconds(3600) {
		t.Errorf("Expected lease time 3600s, got %v", cfg.LeaseTime)
	}
	if cfg.Workers != 8 {
		t.Errorf("Expected 8 workers, got %d", cfg.Workers)
	}
}

// TestParse_Defaults tests the values applied to a minimal file
func TestParse_Defaults(t *testing.T) {
	minimal := `
server_ip: 192.168.56.1
pool:
  start: 192.168.56.3
  end: 192.168.56.255
subnet_mask: 255.255.255.0
`
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Listen != DefaultListen {
		t.Errorf("Expected default listen, got %s", cfg.Listen)
	}
	if cfg.Workers != DefaultWorkers {
		t.Errorf("Expected default workers, got %d", cfg.Workers)
	}
	if cfg.LeaseTime != dhcp.Seconds(lease.DefaultLeaseSeconds) {
		t.Errorf("Expected default lease time, got %v", cfg.LeaseTime)
	}
	if cfg.Router != nil || len(cfg.DNS) != 0 || cfg.DomainName != "" {
		t.Error("Expected no reply extras on a minimal config")
	}
}

// TestParse_Errors tests rejection of broken files
func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		errPart string
	}{
		{
			name:    "Missing server ip",
			yaml:    "pool:\n  start: 10.0.0.1\n  end: 10.0.0.9\nsubnet_mask: 255.255.255.0\n",
			errPart: "server_ip",
		},
		{
			name:    "Invalid pool start",
			yaml:    "server_ip: 10.0.0.1\npool:\n  start: banana\n  end: 10.0.0.9\nsubnet_mask: 255.255.255.0\n",
			errPart: "pool.start",
		},
		{
			name:    "IPv6 pool bound",
			yaml:    "server_ip: 10.0.0.1\npool:\n  start: 2001:db8::1\n  end: 10.0.0.9\nsubnet_mask: 255.255.255.0\n",
			errPart: "pool.start",
		},
		{
			name:    "Pool start above end",
			yaml:    "server_ip: 10.0.0.1\npool:\n  start: 10.0.0.9\n  end: 10.0.0.1\nsubnet_mask: 255.255.255.0\n",
			errPart: "pool start",
		},
		{
			name:    "Bad listen address",
			yaml:    "listen: nonsense\nserver_ip: 10.0.0.1\npool:\n  start: 10.0.0.2\n  end: 10.0.0.9\nsubnet_mask: 255.255.255.0\n",
			errPart: "listen",
		},
		{
			name:    "Not YAML",
			yaml:    "{{{{",
			errPart: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("Expected error mentioning %q, got %v", tt.errPart, err)
			}
		})
	}
}

// TestReplyOptions tests conversion of the configured extras
func TestReplyOptions(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	opts := cfg.ReplyOptions()
	if len(opts) != 3 {
		t.Fatalf("Expected 3 reply options, got %d", len(opts))
	}

	codes := map[uint8]bool{}
	for _, opt := range opts {
		codes[opt.Code()] = true
	}
	for _, want := range []uint8{dhcp.OptRouter, dhcp.OptDNS, dhcp.OptDomainName} {
		if !codes[want] {
			t.Errorf("Expected option %d among the extras", want)
		}
	}
}

// TestNewRange tests handing the pool off to the allocator
func TestNewRange(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	rng, err := cfg.NewRange()
	if err != nil {
		t.Fatalf("NewRange failed: %v", err)
	}
	if rng.Size() != 252 {
		t.Errorf("Expected 252 addresses in [.3, .255), got %d", rng.Size())
	}
	if !rng.ServerAddr().Equal(cfg.ServerIP) {
		t.Errorf("Expected server addr %v, got %v", cfg.ServerIP, rng.ServerAddr())
	}
}
