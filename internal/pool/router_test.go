package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devicesim/snmpsim/internal/oidtree"
	"github.com/devicesim/snmpsim/internal/pdu"
	"github.com/devicesim/snmpsim/internal/processor"
	"github.com/devicesim/snmpsim/internal/profiles"
	"github.com/devicesim/snmpsim/internal/resources"
)

func fixedResolver(deviceType string) TypeResolver {
	return func(port int) (string, bool) { return deviceType, true }
}

func TestGetLazilyCreatesAndCaches(t *testing.T) {
	store := profiles.New()
	store.Load("router", oidtree.New(), nil)
	proc := processor.New(store)
	mgr := resources.New(resources.DefaultConfig(), nil)
	defer mgr.Stop()

	r := New(fixedResolver("router"), nil, proc, mgr, "public")

	a1, err := r.Get(30000)
	require.NoError(t, err)
	require.NotNil(t, a1)

	a2, err := r.Get(30000)
	require.NoError(t, err)
	require.Same(t, a1, a2)

	require.Equal(t, 1, mgr.Stats().ActiveDevices)
}

func TestGetDeniesWhenResolverHasNoType(t *testing.T) {
	store := profiles.New()
	proc := processor.New(store)
	mgr := resources.New(resources.DefaultConfig(), nil)
	defer mgr.Stop()

	r := New(func(int) (string, bool) { return "", false }, nil, proc, mgr, "public")

	_, err := r.Get(30000)
	require.ErrorIs(t, err, ErrResourceLimitExceeded)
}

func TestGetDeniesWhenResourceManagerRefuses(t *testing.T) {
	store := profiles.New()
	store.Load("router", oidtree.New(), nil)
	proc := processor.New(store)
	mgr := resources.New(resources.Config{MaxDevices: 1, MaxMemoryMB: 1 << 20, CleanupInterval: time.Hour, IdleThreshold: time.Hour}, nil)
	defer mgr.Stop()

	r := New(fixedResolver("router"), nil, proc, mgr, "public")

	_, err := r.Get(30000)
	require.NoError(t, err)

	_, err = r.Get(30001)
	require.ErrorIs(t, err, ErrResourceLimitExceeded)
}

func TestRemoveStopsActorAndUnregisters(t *testing.T) {
	store := profiles.New()
	store.Load("router", oidtree.New(), nil)
	proc := processor.New(store)
	mgr := resources.New(resources.DefaultConfig(), nil)
	defer mgr.Stop()

	r := New(fixedResolver("router"), nil, proc, mgr, "public")
	_, err := r.Get(30000)
	require.NoError(t, err)
	require.Equal(t, 1, mgr.Stats().ActiveDevices)

	r.Remove(30000)

	require.Eventually(t, func() bool {
		return mgr.Stats().ActiveDevices == 0
	}, time.Second, 10*time.Millisecond)
}

func TestRoutedActorServesRequests(t *testing.T) {
	store := profiles.New()
	tree := oidtree.New()
	tree.Insert("1.3.6.1.2.1.1.1.0", oidtree.Value{Type: oidtree.TypeOctetString, Value: "x"})
	store.Load("router", tree, nil)
	proc := processor.New(store)
	mgr := resources.New(resources.DefaultConfig(), nil)
	defer mgr.Stop()

	r := New(fixedResolver("router"), nil, proc, mgr, "public")
	actor, err := r.Get(30000)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := actor.HandlePDU(ctx, pdu.Message{
		Version: pdu.V2c,
		PDU:     pdu.PDU{Type: pdu.TypeGetRequest, RequestID: 1, VarBinds: []pdu.VarBind{{OID: "1.3.6.1.2.1.1.1.0"}}},
	})
	require.NoError(t, err)
	require.Equal(t, pdu.NoError, resp.PDU.ErrorStatus)
}
