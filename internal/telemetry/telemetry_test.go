package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Handle(ev Event) {
	r.events = append(r.events, ev)
}

func TestBusFansOutToAllSinks(t *testing.T) {
	s1, s2 := &recordingSink{}, &recordingSink{}
	bus := NewBus(s1, s2)

	bus.Emit("device.created", map[string]interface{}{"device_type": "router"})

	require.Eventually(t, func() bool {
		return len(s1.events) == 1 && len(s2.events) == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, "device.created", s1.events[0].Name)
}

func TestBusDropsUnderBackpressureRatherThanBlocking(t *testing.T) {
	blocked := make(chan struct{})
	bus := NewBus(blockingSink{blocked})
	defer close(blocked)

	for i := 0; i < busSize+10; i++ {
		bus.Emit("device.request", nil)
	}

	require.Greater(t, bus.DroppedCount(), uint64(0))
}

type blockingSink struct{ blocked chan struct{} }

func (b blockingSink) Handle(Event) { <-b.blocked }

func TestPrometheusSinkCountsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.Handle(Event{Name: "device.request", Fields: map[string]interface{}{
		"pdu_type": "get", "success": true, "duration_us": int64(1500),
	}})
	sink.Handle(Event{Name: "device.request", Fields: map[string]interface{}{
		"pdu_type": "get", "success": false,
	}})

	mf, err := reg.Gather()
	require.NoError(t, err)
	require.True(t, findCounterSum(mf, "snmpsim_requests_total") >= 2)
}

func findCounterSum(mf []*dto.MetricFamily, name string) float64 {
	var total float64
	for _, f := range mf {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.Metric {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestPrometheusSinkTracksActiveDevices(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.Handle(Event{Name: "device.created", Fields: map[string]interface{}{"device_type": "router"}})
	sink.Handle(Event{Name: "device.created", Fields: map[string]interface{}{"device_type": "router"}})
	sink.Handle(Event{Name: "device.destroyed", Fields: map[string]interface{}{"device_type": "router"}})

	mf, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range mf {
		if f.GetName() != "snmpsim_devices_active" {
			continue
		}
		require.Len(t, f.Metric, 1)
		require.Equal(t, float64(1), f.Metric[0].GetGauge().GetValue())
	}
}

type fakeStats struct {
	active int
	memMB  uint64
}

func (f fakeStats) ActiveDevices() int   { return f.active }
func (f fakeStats) MemoryUsedMB() uint64 { return f.memMB }

func TestReportSinkEmitsOnSchedule(t *testing.T) {
	sink := &recordingSink{}
	bus := NewBus(sink)

	report, err := NewReportSink(bus, fakeStats{active: 3, memMB: 64}, "@every 100ms")
	require.NoError(t, err)
	report.Start()
	defer report.Stop()

	require.Eventually(t, func() bool {
		for _, ev := range sink.events {
			if ev.Name == "performance.report" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}
