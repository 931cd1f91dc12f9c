// Package lease tracks the state of every address in the configured pool:
// free, offered to one or more competing clients, committed to exactly one,
// or declined. All transitions happen under the single lock owned by Shared,
// so two clients can never be committed to the same address.
package lease

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/krisarmstrong/dhcpd-go/pkg/dhcp"
)

// DefaultLeaseSeconds is the lease duration attached to offers when the
// config does not override it.
const DefaultLeaseSeconds uint32 = 86600

var (
	// ErrNotRequested means the address was never offered under the
	// requesting xid; the client is confused or stale.
	ErrNotRequested = errors.New("lease: address not offered to this transaction")

	// ErrInUse means the address is already committed to another client.
	ErrInUse = errors.New("lease: address already in use")
)

// Offer records that an address was promised to one transaction. Offers are
// keyed by xid alone; re-offering to the same xid is a no-op.
type Offer struct {
	XID  uint32
	Time dhcp.LeaseTime
}

// Lease is a committed address.
type Lease struct {
	ClientKey string
	Time      dhcp.LeaseTime
	Start     time.Time
	Options   dhcp.Options // options the client sent with its REQUEST
}

// addrState is the per-address state machine. An address is Used when lease
// is set, Declined when declined is set, and Offered otherwise. Free
// addresses have no entry at all.
type addrState struct {
	offers   map[uint32]Offer
	lease    *Lease
	declined bool
}

// Range owns the half-open pool [start, end) and the state of every address
// handed out from it. It is not safe for concurrent use on its own; wrap it
// in Shared.
type Range struct {
	start       uint32
	end         uint32
	serverAddr  net.IP
	subnetMask  net.IP
	defaultTime dhcp.LeaseTime
	states      map[uint32]*addrState
}

// NewRange builds a pool over [start, end). The bounds must be IPv4 and
// start must precede end.
func NewRange(start, end, serverAddr, subnetMask net.IP, defaultTime dhcp.LeaseTime) (*Range, error) {
	lo, ok := ipToU32(start)
	if !ok {
		return nil, fmt.Errorf("lease: pool start %v is not IPv4", start)
	}
	hi, ok := ipToU32(end)
	if !ok {
		return nil, fmt.Errorf("lease: pool end %v is not IPv4", end)
	}
	if lo >= hi {
		return nil, fmt.Errorf("lease: empty pool: start %v is not below end %v", start, end)
	}
	if _, ok := ipToU32(serverAddr); !ok {
		return nil, fmt.Errorf("lease: server address %v is not IPv4", serverAddr)
	}
	if defaultTime == 0 {
		defaultTime = dhcp.Seconds(DefaultLeaseSeconds)
	}
	return &Range{
		start:       lo,
		end:         hi,
		serverAddr:  serverAddr.To4(),
		subnetMask:  subnetMask.To4(),
		defaultTime: defaultTime,
		states:      make(map[uint32]*addrState),
	}, nil
}

// AvailableIP finds the numerically smallest address that is not committed
// or declined, records an offer for xid on it, and returns it. Offering the
// same address to several contending transactions is deliberate: the first
// to REQUEST wins. Returns false when the pool is exhausted.
func (r *Range) AvailableIP(xid uint32) (net.IP, bool) {
	for a := r.start; a < r.end; a++ {
		st, ok := r.states[a]
		if !ok {
			r.states[a] = &addrState{
				offers: map[uint32]Offer{xid: {XID: xid, Time: r.defaultTime}},
			}
			return ipFromU32(a), true
		}
		if st.lease != nil || st.declined {
			continue
		}
		st.offers[xid] = Offer{XID: xid, Time: r.defaultTime}
		return ipFromU32(a), true
	}
	return nil, false
}

// Reserve commits ip to the client behind the packet, provided the packet's
// xid holds an offer on it. On success the address moves to Used, carrying
// the offered lease time, the commit instant and a copy of the client's
// request options. A REQUEST from the client already holding the lease on
// ip (same ClientKey, any xid) renews it: the commit instant is refreshed and
// the existing lease returned.
func (r *Range) Reserve(p *dhcp.Packet, ip net.IP) (*Lease, error) {
	a, ok := ipToU32(ip)
	if !ok {
		return nil, ErrNotRequested
	}
	st, ok := r.states[a]
	if !ok {
		return nil, ErrNotRequested
	}
	if st.lease != nil {
		if st.lease.ClientKey == p.ClientKey() {
			st.lease.Start = time.Now()
			return st.lease, nil
		}
		return nil, ErrInUse
	}
	offer, ok := st.offers[p.XID]
	if !ok {
		return nil, ErrNotRequested
	}

	st.lease = &Lease{
		ClientKey: p.ClientKey(),
		Time:      offer.Time,
		Start:     time.Now(),
		Options:   p.Options.Clone(),
	}
	st.offers = nil
	return st.lease, nil
}

// Release frees a committed address. Only the client holding the lease can
// release it; anything else is ignored.
func (r *Range) Release(ip net.IP, clientKey string) bool {
	a, ok := ipToU32(ip)
	if !ok {
		return false
	}
	st, ok := r.states[a]
	if !ok || st.lease == nil || st.lease.ClientKey != clientKey {
		return false
	}
	delete(r.states, a)
	return true
}

// Decline marks an address unusable after a client reports it in conflict.
// Declined addresses are skipped by AvailableIP until the server restarts.
func (r *Range) Decline(ip net.IP) {
	a, ok := ipToU32(ip)
	if !ok || a < r.start || a >= r.end {
		return
	}
	r.states[a] = &addrState{declined: true}
}

// LeaseFor returns the committed lease on ip, if any.
func (r *Range) LeaseFor(ip net.IP) (*Lease, bool) {
	a, ok := ipToU32(ip)
	if !ok {
		return nil, false
	}
	st, ok := r.states[a]
	if !ok || st.lease == nil {
		return nil, false
	}
	return st.lease, true
}

// UsedCount reports how many addresses are currently committed.
func (r *Range) UsedCount() int {
	n := 0
	for _, st := range r.states {
		if st.lease != nil {
			n++
		}
	}
	return n
}

// Size is the number of addresses in the pool.
func (r *Range) Size() int {
	return int(r.end - r.start)
}

// ServerAddr is the identity advertised in option 54.
func (r *Range) ServerAddr() net.IP {
	return r.serverAddr
}

// Server-side options attached to every OFFER.

// SubnetOption is the advertised subnet mask.
func (r *Range) SubnetOption() dhcp.Option {
	return dhcp.SubnetMask{Mask: r.subnetMask}
}

// LeaseTimeOption is the lease duration promised in an OFFER. The ACK
// echoes the duration actually committed, which Reserve records.
func (r *Range) LeaseTimeOption() dhcp.Option {
	return dhcp.IPLeaseTime{Time: r.defaultTime}
}

// ServerIDOption is the server identifier.
func (r *Range) ServerIDOption() dhcp.Option {
	return dhcp.ServerIdentifier{Addr: r.serverAddr}
}

func ipToU32(ip net.IP) (uint32, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, false
	}
	return binary.BigEndian.Uint32(v4), true
}

func ipFromU32(a uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, a)
	return ip
}
