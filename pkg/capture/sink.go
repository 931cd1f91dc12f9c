// Package capture writes an on-disk pcap trace of every DHCP exchange. The
// server operates at the UDP socket layer, so Ethernet and IP framing is
// synthesized around each datagram before it is appended to the file.
package capture

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Synthetic MAC addresses for the framing. Locally administered; the real
// link-layer addresses never reach the socket layer.
var (
	sinkSrcMAC = net.HardwareAddr{0x02, 0xdc, 0x00, 0x00, 0x00, 0x01}
	sinkDstMAC = net.HardwareAddr{0x02, 0xdc, 0x00, 0x00, 0x00, 0x02}
)

// Sink appends framed datagrams to a pcap file. Safe for concurrent use.
type Sink struct {
	mu sync.Mutex
	f  *os.File
	w  *pcapgo.Writer
}

// Open creates (or truncates) the trace file at path.
func Open(path string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap log: %w", err)
	}

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Sink{f: f, w: w}, nil
}

// Record appends one datagram, framed as Ethernet/IPv4/UDP.
func (s *Sink) Record(src, dst *net.UDPAddr, payload []byte) error {
	if s == nil {
		return nil
	}

	eth := &layers.Ethernet{
		SrcMAC:       sinkSrcMAC,
		DstMAC:       sinkDstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    v4OrZero(src.IP),
		DstIP:    v4OrZero(dst.IP),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serialize frame: %w", err)
	}

	frame := buf.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.WritePacket(ci, frame)
}

// Close flushes and closes the trace file.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

func v4OrZero(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return net.IPv4zero.To4()
}
