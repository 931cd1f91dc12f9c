// Package config loads and validates the daemon's YAML configuration.
package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/krisarmstrong/dhcpd-go/pkg/dhcp"
	"github.com/krisarmstrong/dhcpd-go/pkg/lease"
)

// Defaults applied when the file leaves a field empty.
const (
	DefaultListen  = "0.0.0.0:67"
	DefaultWorkers = 4
)

// fileConfig is the raw YAML shape. It is converted into Config with every
// IPv4 address parsed and checked into a net.IP; the listen addresses stay
// host:port strings, checked with net.SplitHostPort.
type fileConfig struct {
	Listen        string   `yaml:"listen,omitempty"`
	ServerIP      string   `yaml:"server_ip"`
	Pool          filePool `yaml:"pool"`
	SubnetMask    string   `yaml:"subnet_mask"`
	Router        string   `yaml:"router,omitempty"`
	DNS           []string `yaml:"dns,omitempty"`
	DomainName    string   `yaml:"domain_name,omitempty"`
	LeaseSeconds  uint32   `yaml:"lease_seconds,omitempty"`
	Workers       int      `yaml:"workers,omitempty"`
	MetricsListen string   `yaml:"metrics_listen,omitempty"`
	PcapLog       string   `yaml:"pcap_log,omitempty"`
	Storage       string   `yaml:"storage,omitempty"`
}

type filePool struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Config is the validated runtime configuration.
type Config struct {
	Listen     string
	ServerIP   net.IP
	PoolStart  net.IP
	PoolEnd    net.IP
	SubnetMask net.IP

	// Optional extras handed out in replies
	Router     net.IP
	DNS        []net.IP
	DomainName string

	LeaseTime     dhcp.LeaseTime
	Workers       int
	MetricsListen string
	PcapLog       string
	Storage       string
}

// Load reads and validates a configuration file.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse validates raw YAML bytes.
func Parse(data []byte) (*Config, error) {
	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		Listen:        raw.Listen,
		DomainName:    raw.DomainName,
		LeaseTime:     dhcp.Seconds(raw.LeaseSeconds),
		Workers:       raw.Workers,
		MetricsListen: raw.MetricsListen,
		PcapLog:       raw.PcapLog,
		Storage:       raw.Storage,
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if raw.LeaseSeconds == 0 {
		cfg.LeaseTime = dhcp.Seconds(lease.DefaultLeaseSeconds)
	}

	var err error
	if cfg.ServerIP, err = parseIPv4("server_ip", raw.ServerIP); err != nil {
		return nil, err
	}
	if cfg.PoolStart, err = parseIPv4("pool.start", raw.Pool.Start); err != nil {
		return nil, err
	}
	if cfg.PoolEnd, err = parseIPv4("pool.end", raw.Pool.End); err != nil {
		return nil, err
	}
	if cfg.SubnetMask, err = parseIPv4("subnet_mask", raw.SubnetMask); err != nil {
		return nil, err
	}
	if raw.Router != "" {
		if cfg.Router, err = parseIPv4("router", raw.Router); err != nil {
			return nil, err
		}
	}
	for i, s := range raw.DNS {
		ip, err := parseIPv4(fmt.Sprintf("dns[%d]", i), s)
		if err != nil {
			return nil, err
		}
		cfg.DNS = append(cfg.DNS, ip)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	start := ipv4ToUint(c.PoolStart)
	end := ipv4ToUint(c.PoolEnd)
	if start >= end {
		return fmt.Errorf("config: pool start %v is not below pool end %v", c.PoolStart, c.PoolEnd)
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("config: invalid listen address %q: %w", c.Listen, err)
	}
	if c.MetricsListen != "" {
		if _, _, err := net.SplitHostPort(c.MetricsListen); err != nil {
			return fmt.Errorf("config: invalid metrics_listen address %q: %w", c.MetricsListen, err)
		}
	}
	return nil
}

// NewRange builds the lease range described by the config.
func (c *Config) NewRange() (*lease.Range, error) {
	return lease.NewRange(c.PoolStart, c.PoolEnd, c.ServerIP, c.SubnetMask, c.LeaseTime)
}

// ReplyOptions are the configured extras attached to OFFER and ACK replies.
func (c *Config) ReplyOptions() []dhcp.Option {
	var opts []dhcp.Option
	if c.Router != nil {
		opts = append(opts, dhcp.Routers{Addrs: []net.IP{c.Router}})
	}
	if len(c.DNS) > 0 {
		opts = append(opts, dhcp.DNSServers{Addrs: c.DNS})
	}
	if c.DomainName != "" {
		opts = append(opts, dhcp.DomainName{Name: c.DomainName})
	}
	return opts
}

func parseIPv4(field, s string) (net.IP, error) {
	if s == "" {
		return nil, fmt.Errorf("config: %s is required", field)
	}
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("config: %s: invalid IPv4 address %q", field, s)
	}
	return ip.To4(), nil
}

func ipv4ToUint(ip net.IP) uint32 {
	v4 := ip.To4()
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}
