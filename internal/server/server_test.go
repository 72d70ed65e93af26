package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devicesim/snmpsim/internal/oidtree"
	"github.com/devicesim/snmpsim/internal/pdu"
	"github.com/devicesim/snmpsim/internal/pool"
	"github.com/devicesim/snmpsim/internal/processor"
	"github.com/devicesim/snmpsim/internal/profiles"
	"github.com/devicesim/snmpsim/internal/resources"
)

func testRouter(t *testing.T) (*pool.Router, *resources.Manager) {
	t.Helper()
	store := profiles.New()
	tree := oidtree.New()
	tree.Insert("1.3.6.1.2.1.1.1.0", oidtree.Value{Type: oidtree.TypeOctetString, Value: "Motorola SB6141"})
	store.Load("cable_modem", tree, nil)

	proc := processor.New(store)
	mgr := resources.New(resources.DefaultConfig(), nil)
	r := pool.New(func(int) (string, bool) { return "cable_modem", true }, nil, proc, mgr, "public")
	return r, mgr
}

func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0, IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

// S1 — GET sysDescr (v2c), driven over a real loopback socket.
func TestScenarioS1_OverUDP(t *testing.T) {
	router, mgr := testRouter(t)
	defer mgr.Stop()

	port := freePort(t)
	srv := New(Config{
		ListenAddr:     "127.0.0.1",
		SocketCount:    1,
		BufferBytes:    65536,
		WorkerPoolSize: 2,
		RequestTimeout: time.Second,
		Community:      "public",
	}, router, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx, []int{port}))
	defer srv.Stop()

	client, err := net.DialUDP("udp", nil, &net.UDPAddr{Port: port, IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer client.Close()

	req := pdu.Message{
		Version:   pdu.V2c,
		Community: "public",
		PDU: pdu.PDU{
			Type:      pdu.TypeGetRequest,
			RequestID: 42,
			VarBinds:  []pdu.VarBind{{OID: "1.3.6.1.2.1.1.1.0"}},
		},
	}
	raw, err := pdu.EncodeMessage(&req)
	require.NoError(t, err)

	_, err = client.Write(raw)
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 65536)
	n, err := client.Read(buf)
	require.NoError(t, err)

	resp, err := pdu.DecodeMessage(buf[:n])
	require.NoError(t, err)
	require.Equal(t, pdu.NoError, resp.PDU.ErrorStatus)
	require.Equal(t, "Motorola SB6141", resp.PDU.VarBinds[0].Value)
}

// Invalid community: silent drop, no response (spec.md §4.8).
func TestBadCommunitySilentlyDropped(t *testing.T) {
	router, mgr := testRouter(t)
	defer mgr.Stop()

	port := freePort(t)
	srv := New(Config{
		ListenAddr:     "127.0.0.1",
		SocketCount:    1,
		WorkerPoolSize: 1,
		RequestTimeout: time.Second,
		Community:      "public",
	}, router, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx, []int{port}))
	defer srv.Stop()

	client, err := net.DialUDP("udp", nil, &net.UDPAddr{Port: port, IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer client.Close()

	req := pdu.Message{
		Version:   pdu.V2c,
		Community: "wrong",
		PDU:       pdu.PDU{Type: pdu.TypeGetRequest, RequestID: 1, VarBinds: []pdu.VarBind{{OID: "1.3.6.1.2.1.1.1.0"}}},
	}
	raw, err := pdu.EncodeMessage(&req)
	require.NoError(t, err)
	_, err = client.Write(raw)
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 65536)
	_, err = client.Read(buf)
	require.Error(t, err) // deadline exceeded: nothing was ever sent back
}

// S7 analogue driven through the server: resource exhaustion yields
// resourceUnavailable rather than silent drop or a crash.
type fakeDevice struct{ last time.Time }

func (f *fakeDevice) LastActivity() time.Time { return f.last }
func (f *fakeDevice) Stop()                   {}

func TestResourceExhaustionRepliesResourceUnavailable(t *testing.T) {
	store := profiles.New()
	store.Load("cable_modem", oidtree.New(), nil)
	proc := processor.New(store)
	mgr := resources.New(resources.Config{MaxDevices: 1, MaxMemoryMB: 1 << 20, CleanupInterval: time.Hour, IdleThreshold: time.Hour}, nil)
	defer mgr.Stop()
	mgr.Register("pre-existing", "cable_modem", &fakeDevice{last: time.Now()}) // consumes the only slot
	router := pool.New(func(int) (string, bool) { return "cable_modem", true }, nil, proc, mgr, "public")

	port := freePort(t)
	srv := New(Config{
		ListenAddr:     "127.0.0.1",
		SocketCount:    1,
		WorkerPoolSize: 1,
		RequestTimeout: time.Second,
		Community:      "public",
	}, router, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx, []int{port}))
	defer srv.Stop()

	client, err := net.DialUDP("udp", nil, &net.UDPAddr{Port: port, IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer client.Close()

	req := pdu.Message{
		Version:   pdu.V2c,
		Community: "public",
		PDU:       pdu.PDU{Type: pdu.TypeGetRequest, RequestID: 7, VarBinds: []pdu.VarBind{{OID: "1.3.6.1.2.1.1.1.0"}}},
	}
	raw, err := pdu.EncodeMessage(&req)
	require.NoError(t, err)
	_, err = client.Write(raw)
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 65536)
	n, err := client.Read(buf)
	require.NoError(t, err)

	resp, err := pdu.DecodeMessage(buf[:n])
	require.NoError(t, err)
	require.Equal(t, pdu.ResourceUnavailable, resp.PDU.ErrorStatus)
}

// SO_REUSEPORT must be set before bind, not after, or every socket past
// the first on one port fails with EADDRINUSE — the default
// udp_socket_count is 4 (config.go), so this exercises that default
// directly rather than relying on the SocketCount:1 every other test uses.
func TestStartWithMultipleSocketsPerPort(t *testing.T) {
	router, mgr := testRouter(t)
	defer mgr.Stop()

	port := freePort(t)
	srv := New(Config{
		ListenAddr:     "127.0.0.1",
		SocketCount:    4,
		BufferBytes:    65536,
		WorkerPoolSize: 2,
		RequestTimeout: time.Second,
		Community:      "public",
	}, router, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx, []int{port}))
	defer srv.Stop()
	require.Len(t, srv.listeners, 4)

	client, err := net.DialUDP("udp", nil, &net.UDPAddr{Port: port, IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer client.Close()

	req := pdu.Message{
		Version:   pdu.V2c,
		Community: "public",
		PDU:       pdu.PDU{Type: pdu.TypeGetRequest, RequestID: 99, VarBinds: []pdu.VarBind{{OID: "1.3.6.1.2.1.1.1.0"}}},
	}
	raw, err := pdu.EncodeMessage(&req)
	require.NoError(t, err)
	_, err = client.Write(raw)
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 65536)
	n, err := client.Read(buf)
	require.NoError(t, err)

	resp, err := pdu.DecodeMessage(buf[:n])
	require.NoError(t, err)
	require.Equal(t, pdu.NoError, resp.PDU.ErrorStatus)
}

func TestStartTwiceReturnsError(t *testing.T) {
	router, mgr := testRouter(t)
	defer mgr.Stop()
	port := freePort(t)
	srv := New(Config{ListenAddr: "127.0.0.1", SocketCount: 1, WorkerPoolSize: 1, RequestTimeout: time.Second, Community: "public"}, router, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx, []int{port}))
	defer srv.Stop()

	require.Error(t, srv.Start(ctx, []int{port}))
}
