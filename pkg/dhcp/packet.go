package dhcp

import (
	"encoding/hex"
	"fmt"
	"net"
)

// MagicCookie separates the BOOTP header from the DHCP options.
var MagicCookie = [4]byte{99, 130, 83, 99}

const (
	// HeaderLen is the fixed BOOTP header size.
	HeaderLen = 236
	// MinPacketLen is the smallest datagram worth decoding: the fixed
	// header plus the magic cookie.
	MinPacketLen = 240

	// BroadcastFlag is bit 15 of the flags field: the client cannot yet
	// receive unicast and the reply must be broadcast.
	BroadcastFlag uint16 = 1 << 15

	// MaxPacketLen is the buffer size used for encode and receive. Far
	// above the minimum DHCP message size of 576.
	MaxPacketLen = 4096
)

// Op is the BOOTP operation field.
type Op uint8

const (
	BootRequest Op = 1
	BootReply   Op = 2
)

func (o Op) String() string {
	switch o {
	case BootRequest:
		return "BOOTREQUEST"
	case BootReply:
		return "BOOTREPLY"
	default:
		return fmt.Sprintf("OP(%d)", uint8(o))
	}
}

// Packet is one decoded DHCP message. MsgType mirrors option 53, which is
// required on every packet and kept out of the Options set so it can never
// disagree with the field.
type Packet struct {
	Op    Op
	HType uint8
	HLen  uint8
	Hops  uint8
	XID   uint32
	Secs  uint16
	Flags uint16

	CIAddr net.IP // client's current address, if it has one
	YIAddr net.IP // "your" address: what the server assigns
	SIAddr net.IP // next server in the bootstrap chain
	GIAddr net.IP // relay agent, passed through unchanged

	CHAddr [16]byte  // client hardware address, zero padded
	SName  [64]byte  // server host name, NUL terminated
	File   [128]byte // boot file name, NUL terminated

	Options Options
	MsgType MessageType
}

// NewRequest builds a BOOTREQUEST with fixed test-harness values: clients in
// production fill in their own xid and hardware address.
func NewRequest(mt MessageType) *Packet {
	p := &Packet{
		Op:      BootRequest,
		HType:   1,
		HLen:    6,
		XID:     666,
		Secs:    128,
		Flags:   BroadcastFlag,
		CIAddr:  net.IPv4zero.To4(),
		YIAddr:  net.IPv4zero.To4(),
		SIAddr:  net.IPv4zero.To4(),
		GIAddr:  net.IPv4zero.To4(),
		Options: make(Options),
		MsgType: mt,
	}
	copy(p.CHAddr[:], []byte{0xde, 0xad, 0xc0, 0xde, 0xca, 0xfe})
	return p
}

// Decode parses a datagram. The buffer must hold the whole message; short
// reads surface as protocol errors, not panics.
func Decode(b []byte) (*Packet, error) {
	if len(b) < MinPacketLen {
		return nil, ErrShortPacket
	}

	op := Op(b[0])
	if op != BootRequest && op != BootReply {
		return nil, fmt.Errorf("%w: %d", ErrBadOp, b[0])
	}
	if [4]byte(b[236:240]) != MagicCookie {
		return nil, ErrBadCookie
	}

	p := &Packet{
		Op:     op,
		HType:  b[1],
		HLen:   b[2],
		Hops:   b[3],
		XID:    readU32(b, 4),
		Secs:   readU16(b, 8),
		Flags:  readU16(b, 10),
		CIAddr: readIPv4(b, 12),
		YIAddr: readIPv4(b, 16),
		SIAddr: readIPv4(b, 20),
		GIAddr: readIPv4(b, 24),
	}
	copy(p.CHAddr[:], b[28:44])
	copy(p.SName[:], b[44:108])
	copy(p.File[:], b[108:236])

	opts, err := DecodeOptions(b[240:])
	if err != nil {
		return nil, err
	}

	mt, ok := opts.Get(OptMessageType)
	if !ok {
		return nil, ErrNoMessageType
	}
	delete(opts, OptMessageType)

	p.Options = opts
	p.MsgType = mt.(MessageTypeOption).Type
	return p, nil
}

// Encode serializes the packet into buf and returns the number of bytes
// written, END octet included. Option 53 is written first at offset 240,
// per the historical layout. The caller supplies a buffer large enough for
// the header plus the option set; MaxPacketLen always is.
func (p *Packet) Encode(buf []byte) int {
	buf[0] = byte(p.Op)
	buf[1] = p.HType
	buf[2] = p.HLen
	buf[3] = p.Hops
	writeU32(buf, 4, p.XID)
	writeU16(buf, 8, p.Secs)
	writeU16(buf, 10, p.Flags)
	writeSlice(buf, 12, ipValue(p.CIAddr))
	writeSlice(buf, 16, ipValue(p.YIAddr))
	writeSlice(buf, 20, ipValue(p.SIAddr))
	writeSlice(buf, 24, ipValue(p.GIAddr))
	writeSlice(buf, 28, p.CHAddr[:])
	writeSlice(buf, 44, p.SName[:])
	writeSlice(buf, 108, p.File[:])
	writeSlice(buf, 236, MagicCookie[:])

	buf[240] = OptMessageType
	buf[241] = 1
	buf[242] = byte(p.MsgType)

	return 243 + EncodeOptions(p.Options, buf[243:])
}

// IntoResponse turns a decoded request into the reply skeleton for it: op
// flips to BOOTREPLY, the option set is cleared and the message type is
// replaced. xid, chaddr, flags and giaddr stay so the client can match the
// reply to its request.
func (p *Packet) IntoResponse(mt MessageType) {
	p.Op = BootReply
	p.Options = make(Options)
	p.MsgType = mt
}

// AddOption inserts opt if its code is absent and reports whether it was
// inserted.
func (p *Packet) AddOption(opt Option) bool {
	return p.Options.Add(opt)
}

// OverrideOption inserts opt, replacing any option of the same code, and
// returns the displaced option if there was one.
func (p *Packet) OverrideOption(opt Option) (Option, bool) {
	return p.Options.Override(opt)
}

// RequestedIP returns the address in a RequestedIp option, if present.
func (p *Packet) RequestedIP() (net.IP, bool) {
	opt, ok := p.Options.Get(OptRequestedIP)
	if !ok {
		return nil, false
	}
	return opt.(RequestedIP).Addr, true
}

// IsBroadcast reports whether the reply must go to the limited broadcast
// address instead of the unicast source.
func (p *Packet) IsBroadcast() bool {
	return p.Flags&BroadcastFlag != 0
}

// HardwareAddr returns the client hardware address trimmed to hlen.
func (p *Packet) HardwareAddr() net.HardwareAddr {
	n := int(p.HLen)
	if n == 0 || n > len(p.CHAddr) {
		n = len(p.CHAddr)
	}
	return net.HardwareAddr(p.CHAddr[:n])
}

// ClientKey identifies the client behind the packet: the client-identifier
// option when present, the hardware address otherwise. A client renewing
// under a fresh xid still maps to the same key.
func (p *Packet) ClientKey() string {
	if opt, ok := p.Options.Get(OptClientIdentifier); ok {
		return "id:" + hex.EncodeToString(opt.(ClientIdentifier).Data)
	}
	return "hw:" + hex.EncodeToString(p.HardwareAddr())
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s %s xid=0x%x chaddr=%s yiaddr=%s",
		p.Op, p.MsgType, p.XID, p.HardwareAddr(), p.YIAddr)
}
