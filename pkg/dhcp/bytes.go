package dhcp

import (
	"encoding/binary"
	"net"
)

// Positional big-endian primitives over a caller-sized buffer. A short
// buffer is a programmer error here, not a protocol error; bounds are the
// caller's responsibility and decode paths check lengths before reaching
// these helpers.

func readU16(b []byte, off int) uint16 {
	return binary.BigEndian.Uint16(b[off : off+2])
}

func readU32(b []byte, off int) uint32 {
	return binary.BigEndian.Uint32(b[off : off+4])
}

// readIPv4 reads four bytes at off as an IPv4 address.
func readIPv4(b []byte, off int) net.IP {
	ip := make(net.IP, 4)
	copy(ip, b[off:off+4])
	return ip
}

// readIPv4s reads count consecutive IPv4 addresses starting at off.
func readIPv4s(b []byte, off, count int) []net.IP {
	ips := make([]net.IP, 0, count)
	for i := 0; i < count; i++ {
		ips = append(ips, readIPv4(b, off+i*4))
	}
	return ips
}

func writeU16(b []byte, off int, v uint16) {
	binary.BigEndian.PutUint16(b[off:off+2], v)
}

func writeU32(b []byte, off int, v uint32) {
	binary.BigEndian.PutUint32(b[off:off+4], v)
}

func writeSlice(b []byte, off int, v []byte) {
	copy(b[off:off+len(v)], v)
}

// writeTag and writeLen follow the option frame convention: tag at offset 0,
// value length at offset 1, value bytes from offset 2.

func writeTag(b []byte, tag uint8) {
	b[0] = tag
}

func writeLen(b []byte, n uint8) {
	b[1] = n
}
