// Package server implements spec.md §4.8, the UDP Server: one or more
// SO_REUSEPORT sockets per bound device port, each read by its own
// goroutine, feeding a bounded job queue drained by a fixed worker pool
// (spec.md §6.4 udp_socket_count/worker_pool_size). Grounded in the
// teacher's internal/engine.Simulator.startListener/handleListener and
// its setSocketOptions SO_REUSEPORT dance (golang.org/x/sys/unix),
// generalized from one listener per device to udp_socket_count listeners
// sharing one port via the kernel's reuseport load balancing.
package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/devicesim/snmpsim/internal/pdu"
	"github.com/devicesim/snmpsim/internal/pool"
	"github.com/devicesim/snmpsim/internal/simlog"
)

// Telemetry is the minimal event sink the server emits request/drop
// events to (spec.md §4.10). A nil Telemetry is a valid no-op sink.
type Telemetry interface {
	Emit(name string, fields map[string]interface{})
}

type noopTelemetry struct{}

func (noopTelemetry) Emit(string, map[string]interface{}) {}

// Config holds the server's listening/sizing parameters (spec.md §6.4).
type Config struct {
	ListenAddr     string
	ListenAddr6    string // empty disables IPv6 listening
	SocketCount    int
	BufferBytes    int
	WorkerPoolSize int
	RequestTimeout time.Duration
	Community      string
}

// job is one received packet queued for a worker.
type job struct {
	data []byte
	n    int
	addr *net.UDPAddr
	conn *net.UDPConn
	port int
}

// Server owns the reuseport listener sockets and the worker pool that
// decodes, routes and answers every packet they receive.
type Server struct {
	cfg     Config
	router  *pool.Router
	tel     Telemetry
	bufPool sync.Pool

	listeners []*net.UDPConn
	jobs      chan job

	wg      sync.WaitGroup
	running atomic.Bool
	cancel  context.CancelFunc
}

// New returns a Server that will route packets via router. Ports to
// listen on are determined by Start's devicePorts argument, not by cfg,
// since the port set is only known once the Device Pool's configured
// device_types/port_ranges are resolved.
func New(cfg Config, router *pool.Router, tel Telemetry) *Server {
	if cfg.SocketCount <= 0 {
		cfg.SocketCount = 1
	}
	if cfg.BufferBytes <= 0 {
		cfg.BufferBytes = 65536
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 1
	}
	if tel == nil {
		tel = noopTelemetry{}
	}
	s := &Server{cfg: cfg, router: router, tel: tel, jobs: make(chan job, cfg.WorkerPoolSize*4)}
	s.bufPool.New = func() interface{} { return make([]byte, cfg.BufferBytes) }
	return s
}

// Start binds udp_socket_count reuseport sockets per port in devicePorts
// (plus the IPv6 equivalent if cfg.ListenAddr6 is set), starts the
// worker pool, and returns once every listener is bound. A bind failure
// on any socket tears down everything already started and returns the
// error (spec.md §7: "fatal errors remain limited to UDP socket bind
// failure at startup").
func (s *Server) Start(ctx context.Context, devicePorts []int) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("server: already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)

	for i := 0; i < s.cfg.WorkerPoolSize; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	for _, port := range devicePorts {
		for i := 0; i < s.cfg.SocketCount; i++ {
			if err := s.listen(ctx, "udp", s.cfg.ListenAddr, port); err != nil {
				s.Stop()
				return err
			}
			if s.cfg.ListenAddr6 != "" {
				if err := s.listen(ctx, "udp6", s.cfg.ListenAddr6, port); err != nil {
					s.Stop()
					return err
				}
			}
		}
	}

	simlog.Printf("server: listening on %d sockets across %d device ports", len(s.listeners), len(devicePorts))
	return nil
}

// listen binds one reuseport UDP socket for network/addr:port. SO_REUSEPORT
// must be set on the socket before bind(2) — setting it afterward is a
// no-op on Linux, since the kernel decides whether a port can be shared at
// bind time, not after. net.ListenConfig.Control runs the callback between
// socket(2) and bind(2), which is the only hook the standard library gives
// for that ordering; net.ListenUDP offers no such hook; it binds
// immediately, which is why this does not use it.
func (s *Server) listen(ctx context.Context, network, addr string, port int) error {
	lc := net.ListenConfig{Control: reusePortControl(s.cfg.BufferBytes)}
	pc, err := lc.ListenPacket(ctx, network, net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("server: listen %s %s:%d: %w", network, addr, port, err)
	}
	conn := pc.(*net.UDPConn)

	s.listeners = append(s.listeners, conn)
	s.wg.Add(1)
	go s.ingest(ctx, conn, port)
	return nil
}

// ingest reads packets off one socket and enqueues them as jobs. It
// never blocks on a full job queue for long: a blocked ingest goroutine
// stalls only the one socket it owns, so a saturated worker pool degrades
// one port's throughput rather than the whole process (spec.md §4.8
// framing: "bounded queue... reply with resourceUnavailable" describes
// per-request backpressure, not a single global stall point).
func (s *Server) ingest(ctx context.Context, conn *net.UDPConn, port int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		buf := s.bufPool.Get().([]byte)
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			s.bufPool.Put(buf)
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if s.running.Load() {
				simlog.Printf("server: read error on port %d: %v", port, err)
			}
			continue
		}

		j := job{data: buf, n: n, addr: addr, conn: conn, port: port}
		select {
		case s.jobs <- j:
		default:
			s.bufPool.Put(buf)
			s.tel.Emit("packets.dropped", map[string]interface{}{"port": port, "reason": "queue_full"})
		}
	}
}

// worker drains the job queue: decode -> community check (silent drop)
// -> router lookup -> bounded actor call -> encode -> send. Malformed
// packets and community mismatches are silently dropped with no reply,
// matching spec.md §4.8's "invalid community / malformed packet: silent
// drop" rule (avoids amplification/probing leakage).
func (s *Server) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			s.handle(ctx, j)
		}
	}
}

func (s *Server) handle(ctx context.Context, j job) {
	defer s.bufPool.Put(j.data)

	start := time.Now()
	msg, err := pdu.DecodeMessage(j.data[:j.n])
	if err != nil {
		s.tel.Emit("packets.dropped", map[string]interface{}{"port": j.port, "reason": "decode_error"})
		return
	}

	if s.cfg.Community != "" && msg.Community != s.cfg.Community {
		s.tel.Emit("packets.dropped", map[string]interface{}{"port": j.port, "reason": "bad_community"})
		return
	}

	actor, err := s.router.Get(j.port)
	if err != nil {
		s.tel.Emit("resource.limit_exceeded", map[string]interface{}{"port": j.port, "warning": false})
		s.reply(j, resourceUnavailable(msg))
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	resp, err := actor.HandlePDU(reqCtx, *msg)
	cancel()
	if err != nil {
		s.tel.Emit("device.request", map[string]interface{}{
			"pdu_type": pduTypeLabel(msg.PDU.Type), "success": false, "duration_us": time.Since(start).Microseconds(),
		})
		return
	}

	s.tel.Emit("device.request", map[string]interface{}{
		"pdu_type": pduTypeLabel(msg.PDU.Type), "success": true, "duration_us": time.Since(start).Microseconds(),
	})
	s.reply(j, resp)
}

func (s *Server) reply(j job, resp pdu.Message) {
	out, err := pdu.EncodeMessage(&resp)
	if err != nil {
		simlog.Printf("server: encode response for port %d: %v", j.port, err)
		return
	}
	if _, err := j.conn.WriteToUDP(out, j.addr); err != nil {
		simlog.Printf("server: write to %v on port %d: %v", j.addr, j.port, err)
	}
}

func resourceUnavailable(req *pdu.Message) pdu.Message {
	return pdu.Message{
		Version:   req.Version,
		Community: req.Community,
		PDU: pdu.PDU{
			Type:        pdu.TypeGetResponse,
			RequestID:   req.PDU.RequestID,
			ErrorStatus: pdu.ResourceUnavailable,
			ErrorIndex:  0,
			VarBinds:    req.PDU.VarBinds,
		},
	}
}

func pduTypeLabel(t pdu.Type) string {
	switch t {
	case pdu.TypeGetRequest:
		return "get"
	case pdu.TypeGetNextRequest:
		return "get_next"
	case pdu.TypeGetBulkRequest:
		return "get_bulk"
	case pdu.TypeSetRequest:
		return "set"
	default:
		return "other"
	}
}

// Stop closes every listener socket (unblocking any in-flight
// ReadFromUDP) and waits for all ingest/worker goroutines to exit.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	for _, conn := range s.listeners {
		conn.SetDeadline(time.Now())
		_ = conn.Close()
	}
	s.wg.Wait()
}

// reusePortControl returns a net.ListenConfig.Control callback that
// enables SO_REUSEPORT (so multiple sockets can share one port, letting
// the kernel load-balance ingress across listener goroutines, exactly as
// the teacher's setSocketOptions does it) and sizes SO_RCVBUF/SO_SNDBUF
// from bufBytes (spec.md §6.4 udp_buffer_bytes, default 65536 — §4.8
// wants both directions sized from that same config value, not a
// hardcoded constant).
func reusePortControl(bufBytes int) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			ifd := int(fd)
			if err := syscall.SetsockoptInt(ifd, syscall.SOL_SOCKET, int(unix.SO_REUSEPORT), 1); err != nil {
				simlog.Warnf("SO_REUSEPORT not available (may reduce performance): %v", err)
			}
			if err := syscall.SetsockoptInt(ifd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, bufBytes); err != nil {
				sockErr = fmt.Errorf("set SO_RCVBUF: %w", err)
				return
			}
			if err := syscall.SetsockoptInt(ifd, syscall.SOL_SOCKET, syscall.SO_SNDBUF, bufBytes); err != nil {
				sockErr = fmt.Errorf("set SO_SNDBUF: %w", err)
			}
		})
		if err != nil {
			return fmt.Errorf("rawConn.Control: %w", err)
		}
		return sockErr
	}
}
