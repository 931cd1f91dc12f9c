// Package server receives DHCP datagrams, routes them through the lease
// allocator and sends the replies. One goroutine owns the socket reads, one
// owns the writes, and a pool of workers runs the per-message logic in
// between.
package server

import (
	"errors"
	"net"

	"github.com/krisarmstrong/dhcpd-go/pkg/dhcp"
	"github.com/krisarmstrong/dhcpd-go/pkg/lease"
	"github.com/krisarmstrong/dhcpd-go/pkg/logging"
	"github.com/krisarmstrong/dhcpd-go/pkg/metrics"
)

// Handler turns one inbound packet into at most one reply. All pool access
// happens inside a single Shared.Do callback per message; the lock is never
// held twice or across I/O.
type Handler struct {
	shared *lease.Shared
	extra  []dhcp.Option // configured router/DNS/domain extras
}

// NewHandler builds a handler over the shared lease range.
func NewHandler(shared *lease.Shared, extra []dhcp.Option) *Handler {
	return &Handler{shared: shared, extra: extra}
}

// Handle dispatches on the message type. A nil return means the datagram
// warrants no reply.
func (h *Handler) Handle(p *dhcp.Packet) *dhcp.Packet {
	switch p.MsgType {
	case dhcp.Discover:
		return h.onDiscover(p)
	case dhcp.Request:
		return h.onRequest(p)
	case dhcp.Decline:
		h.onDecline(p)
		return nil
	case dhcp.Release:
		h.onRelease(p)
		return nil
	default:
		// OFFER, ACK and NAK are server talk; a server receiving them
		// drops them.
		logging.ProtocolDebug("DHCP", 2, "dropping unhandled %s xid=0x%x", p.MsgType, p.XID)
		metrics.DropsTotal.WithLabelValues(metrics.ReasonUnhandled).Inc()
		return nil
	}
}

// onDiscover offers the lowest free address. No reply when the pool is
// exhausted; the client retries on its own schedule.
func (h *Handler) onDiscover(p *dhcp.Packet) *dhcp.Packet {
	var resp *dhcp.Packet

	h.shared.Do(func(r *lease.Range) {
		ip, ok := r.AvailableIP(p.XID)
		if !ok {
			metrics.PoolExhausted.Inc()
			logging.ProtocolDebug("DHCP", 1, "pool exhausted, ignoring DISCOVER xid=0x%x", p.XID)
			return
		}

		p.YIAddr = ip
		p.IntoResponse(dhcp.Offer)
		p.OverrideOption(r.SubnetOption())
		p.OverrideOption(r.LeaseTimeOption())
		p.OverrideOption(r.ServerIDOption())
		h.addExtras(p)
		resp = p
	})
	return resp
}

// onRequest commits the requested address and acknowledges, or refuses with
// a NAK when the address is taken or was never offered to this transaction.
func (h *Handler) onRequest(p *dhcp.Packet) *dhcp.Packet {
	requested, ok := p.RequestedIP()
	if !ok {
		// Renewing clients put the address in ciaddr instead.
		requested = p.CIAddr
	}

	var resp *dhcp.Packet
	h.shared.Do(func(r *lease.Range) {
		granted, err := r.Reserve(p, requested)
		if err != nil {
			logging.ProtocolDebug("DHCP", 1, "NAK %v for xid=0x%x: %v", requested, p.XID, err)
			resp = h.nak(p, r, err)
			return
		}

		metrics.LeasesInUse.Set(float64(r.UsedCount()))

		p.YIAddr = requested
		p.IntoResponse(dhcp.Ack)
		p.OverrideOption(r.SubnetOption())
		p.OverrideOption(dhcp.IPLeaseTime{Time: granted.Time})
		p.OverrideOption(r.ServerIDOption())
		h.addExtras(p)
		resp = p
	})
	return resp
}

// nak builds the refusal for a failed REQUEST. yiaddr stays zero; the
// server identifier and a diagnostic message ride along.
func (h *Handler) nak(p *dhcp.Packet, r *lease.Range, err error) *dhcp.Packet {
	p.YIAddr = net.IPv4zero.To4()
	p.IntoResponse(dhcp.Nak)
	p.OverrideOption(r.ServerIDOption())

	switch {
	case errors.Is(err, lease.ErrInUse):
		p.OverrideOption(dhcp.Message{Text: "requested address in use"})
	case errors.Is(err, lease.ErrNotRequested):
		p.OverrideOption(dhcp.Message{Text: "requested address not offered"})
	}
	return p
}

// onDecline marks the reported address unusable.
func (h *Handler) onDecline(p *dhcp.Packet) {
	ip, ok := p.RequestedIP()
	if !ok {
		return
	}
	h.shared.Do(func(r *lease.Range) {
		r.Decline(ip)
		logging.ProtocolDebug("DHCP", 1, "DECLINE: marked %v unusable", ip)
	})
}

// onRelease frees the client's committed address.
func (h *Handler) onRelease(p *dhcp.Packet) {
	key := p.ClientKey()
	h.shared.Do(func(r *lease.Range) {
		if r.Release(p.CIAddr, key) {
			metrics.LeasesInUse.Set(float64(r.UsedCount()))
			logging.ProtocolDebug("DHCP", 1, "RELEASE: freed %v", p.CIAddr)
		}
	})
}

func (h *Handler) addExtras(p *dhcp.Packet) {
	for _, opt := range h.extra {
		p.AddOption(opt)
	}
}
