package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/krisarmstrong/dhcpd-go/pkg/capture"
	"github.com/krisarmstrong/dhcpd-go/pkg/dhcp"
	"github.com/krisarmstrong/dhcpd-go/pkg/logging"
	"github.com/krisarmstrong/dhcpd-go/pkg/metrics"
)

const (
	// ClientPort is where replies go.
	ClientPort = 68

	// QueueSize bounds the rx and tx channels. A full tx channel applies
	// backpressure to workers, never to the socket reader.
	QueueSize = 64
)

// BroadcastAddr is the limited broadcast destination for clients that
// cannot yet receive unicast.
var BroadcastAddr = net.IPv4bcast

type request struct {
	pkt *dhcp.Packet
	src *net.UDPAddr
}

type reply struct {
	pkt *dhcp.Packet
	dst *net.UDPAddr
}

// Counters is a snapshot of the run's reply counters.
type Counters struct {
	Offers uint64
	Acks   uint64
	Naks   uint64
	Drops  uint64
}

// Server owns the UDP socket and the worker pool. The receive goroutine is
// the only reader and the send goroutine the only writer; workers talk to
// them over the two bounded queues.
type Server struct {
	listen  string
	handler *Handler
	workers int
	sink    *capture.Sink

	conn     *net.UDPConn
	rxQueue  chan request
	txQueue  chan reply
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool

	offers uint64
	acks   uint64
	naks   uint64
	drops  uint64
}

// New builds a server. sink may be nil when pcap tracing is off.
func New(listen string, handler *Handler, workers int, sink *capture.Sink) *Server {
	if workers <= 0 {
		workers = 1
	}
	return &Server{
		listen:   listen,
		handler:  handler,
		workers:  workers,
		sink:     sink,
		rxQueue:  make(chan request, QueueSize),
		txQueue:  make(chan reply, QueueSize),
		stopChan: make(chan struct{}),
	}
}

// Start binds the socket with broadcast enabled and launches the receive
// loop, the send loop and the workers.
func (s *Server) Start() error {
	if s.running {
		return fmt.Errorf("server already running")
	}

	conn, err := listenBroadcast(s.listen)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.listen, err)
	}
	s.conn = conn
	s.running = true

	s.wg.Add(1)
	go s.receiveLoop()

	s.wg.Add(1)
	go s.sendLoop()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.workerLoop()
	}

	logging.Info("dhcpd listening on %s (%d workers)", s.listen, s.workers)
	return nil
}

// Stop shuts the server down and waits for every goroutine to exit.
func (s *Server) Stop() {
	if !s.running {
		return
	}
	s.running = false

	close(s.stopChan)
	_ = s.conn.Close() // unblocks the receive loop
	s.wg.Wait()
}

// LocalAddr reports the bound socket address, nil before Start.
func (s *Server) LocalAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Snapshot returns the run counters.
func (s *Server) Snapshot() Counters {
	return Counters{
		Offers: atomic.LoadUint64(&s.offers),
		Acks:   atomic.LoadUint64(&s.acks),
		Naks:   atomic.LoadUint64(&s.naks),
		Drops:  atomic.LoadUint64(&s.drops),
	}
}

// receiveLoop is the sole reader of the socket. Malformed datagrams are
// dropped and logged; the loop only exits on shutdown.
func (s *Server) receiveLoop() {
	defer s.wg.Done()

	buf := make([]byte, dhcp.MaxPacketLen)
	local, _ := s.conn.LocalAddr().(*net.UDPAddr)

	for {
		n, src, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.stopChan:
				return
			default:
				logging.Error("socket read: %v", err)
				continue
			}
		}

		if s.sink != nil && local != nil {
			if err := s.sink.Record(src, local, buf[:n]); err != nil {
				logging.Warning("pcap log: %v", err)
			}
		}

		pkt, err := dhcp.Decode(buf[:n])
		if err != nil {
			s.dropDecode(src, err)
			continue
		}

		metrics.RequestsTotal.WithLabelValues(pkt.MsgType.String()).Inc()
		logging.ProtocolDebug("DHCP", 2, "%s from %s", pkt, src)

		select {
		case s.rxQueue <- request{pkt: pkt, src: src}:
		default:
			// Never block the socket reader on a full queue.
			atomic.AddUint64(&s.drops, 1)
			metrics.DropsTotal.WithLabelValues(metrics.ReasonQueueFull).Inc()
			logging.Warning("request queue full, dropping %s from %s", pkt.MsgType, src)
		}
	}
}

func (s *Server) dropDecode(src *net.UDPAddr, err error) {
	atomic.AddUint64(&s.drops, 1)

	var parseErr *dhcp.OptionParseError
	if errors.As(err, &parseErr) {
		metrics.DropsTotal.WithLabelValues(metrics.ReasonOptionParse).Inc()
	} else {
		metrics.DropsTotal.WithLabelValues(metrics.ReasonProtocol).Inc()
	}
	logging.ProtocolDebug("DHCP", 1, "dropping datagram from %s: %v", src, err)
}

// workerLoop consumes requests, runs the handler and queues replies. The tx
// send blocks when the send loop lags, which is the intended backpressure.
func (s *Server) workerLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		case req := <-s.rxQueue:
			resp := s.handler.Handle(req.pkt)
			if resp == nil {
				continue
			}

			dst := &net.UDPAddr{IP: req.src.IP, Port: req.src.Port}
			if resp.IsBroadcast() {
				dst = &net.UDPAddr{IP: BroadcastAddr, Port: ClientPort}
			}

			select {
			case <-s.stopChan:
				return
			case s.txQueue <- reply{pkt: resp, dst: dst}:
			}
		}
	}
}

// sendLoop is the sole writer of the socket.
func (s *Server) sendLoop() {
	defer s.wg.Done()

	buf := make([]byte, dhcp.MaxPacketLen)
	local, _ := s.conn.LocalAddr().(*net.UDPAddr)

	for {
		select {
		case <-s.stopChan:
			return
		case rep := <-s.txQueue:
			n := rep.pkt.Encode(buf)
			if _, err := s.conn.WriteToUDP(buf[:n], rep.dst); err != nil {
				metrics.DropsTotal.WithLabelValues(metrics.ReasonSendError).Inc()
				logging.Error("send to %s: %v", rep.dst, err)
				continue
			}

			s.countReply(rep.pkt.MsgType)
			metrics.ResponsesTotal.WithLabelValues(rep.pkt.MsgType.String()).Inc()
			logging.ProtocolDebug("DHCP", 2, "%s to %s", rep.pkt, rep.dst)

			if s.sink != nil && local != nil {
				if err := s.sink.Record(local, rep.dst, buf[:n]); err != nil {
					logging.Warning("pcap log: %v", err)
				}
			}
		}
	}
}

func (s *Server) countReply(mt dhcp.MessageType) {
	switch mt {
	case dhcp.Offer:
		atomic.AddUint64(&s.offers, 1)
	case dhcp.Ack:
		atomic.AddUint64(&s.acks, 1)
	case dhcp.Nak:
		atomic.AddUint64(&s.naks, 1)
	}
}
