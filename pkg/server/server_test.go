package server

import (
	"net"
	"testing"
	"time"

	"github.com/krisarmstrong/dhcpd-go/pkg/dhcp"
	"github.com/krisarmstrong/dhcpd-go/pkg/lease"
)

// startTestServer binds to an ephemeral loopback port so the test needs no
// privileges and no real link.
func startTestServer(t *testing.T) *Server {
	t.Helper()

	r, err := lease.NewRange(
		net.ParseIP("192.168.56.3"),
		net.ParseIP("192.168.56.255"),
		net.ParseIP("192.168.56.1"),
		net.ParseIP("255.255.255.0"),
		0,
	)
	if err != nil {
		t.Fatalf("NewRange failed: %v", err)
	}

	srv := New("127.0.0.1:0", NewHandler(lease.NewShared(r), nil), 2, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

func dialTestServer(t *testing.T, srv *Server) *net.UDPConn {
	t.Helper()

	conn, err := net.DialUDP("udp4", nil, srv.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func exchange(t *testing.T, conn *net.UDPConn, p *dhcp.Packet) *dhcp.Packet {
	t.Helper()

	buf := make([]byte, dhcp.MaxPacketLen)
	n := p.Encode(buf)
	if _, err := conn.Write(buf[:n]); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("No reply: %v", err)
	}
	resp, err := dhcp.Decode(buf[:n])
	if err != nil {
		t.Fatalf("Reply does not decode: %v", err)
	}
	return resp
}

// TestServer_DiscoverRequestExchange tests the four-way handshake over a
// real socket
func TestServer_DiscoverRequestExchange(t *testing.T) {
	srv := startTestServer(t)
	conn := dialTestServer(t, srv)

	disc := dhcp.NewRequest(dhcp.Discover)
	disc.XID = 0x0A
	disc.Flags = 0 // unicast reply, so the test socket receives it

	offer := exchange(t, conn, disc)
	if offer.MsgType != dhcp.Offer {
		t.Fatalf("Expected OFFER, got %v", offer.MsgType)
	}
	if offer.XID != 0x0A {
		t.Errorf("Expected xid 0x0A, got 0x%x", offer.XID)
	}
	if !offer.YIAddr.Equal(net.IP{192, 168, 56, 3}) {
		t.Errorf("Expected yiaddr 192.168.56.3, got %v", offer.YIAddr)
	}

	req := dhcp.NewRequest(dhcp.Request)
	req.XID = 0x0A
	req.Flags = 0
	req.AddOption(dhcp.RequestedIP{Addr: offer.YIAddr})

	ack := exchange(t, conn, req)
	if ack.MsgType != dhcp.Ack {
		t.Fatalf("Expected ACK, got %v", ack.MsgType)
	}
	if !ack.YIAddr.Equal(offer.YIAddr) {
		t.Errorf("Expected yiaddr %v, got %v", offer.YIAddr, ack.YIAddr)
	}

	counters := srv.Snapshot()
	if counters.Offers != 1 || counters.Acks != 1 {
		t.Errorf("Expected 1 offer and 1 ack, got %+v", counters)
	}
}

// TestServer_MalformedDatagramSurvives tests that garbage does not take the
// server down
func TestServer_MalformedDatagramSurvives(t *testing.T) {
	srv := startTestServer(t)
	conn := dialTestServer(t, srv)

	// Valid length, zeroed cookie.
	garbage := make([]byte, 300)
	if _, err := conn.Write(garbage); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	// Too short to even carry a header.
	if _, err := conn.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// The server must still answer a well-formed DISCOVER.
	disc := dhcp.NewRequest(dhcp.Discover)
	disc.Flags = 0
	offer := exchange(t, conn, disc)
	if offer.MsgType != dhcp.Offer {
		t.Errorf("Expected OFFER after garbage, got %v", offer.MsgType)
	}

	if srv.Snapshot().Drops == 0 {
		t.Error("Expected dropped datagrams to be counted")
	}
}

// TestServer_StopIsClean tests shutdown with no goroutine left hanging
func TestServer_StopIsClean(t *testing.T) {
	srv := startTestServer(t)

	done := make(chan struct{})
	go func() {
		srv.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
