package telemetry

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// StatsProvider is whatever can answer "how busy are we right now" at
// report time. internal/resources.Manager satisfies this with its
// ActiveDevices/MemoryUsedMB methods.
type StatsProvider interface {
	ActiveDevices() int
	MemoryUsedMB() uint64
}

// ReportSink periodically emits a performance.report event onto the bus
// it is attached to, on a cron schedule, the same way the teacher's
// traps.Manager drives periodic trap generation with a *cron.Cron
// instance rather than a raw time.Ticker.
type ReportSink struct {
	bus     *Bus
	stats   StatsProvider
	cron    *cron.Cron
	dropped func() uint64
}

// NewReportSink builds a sink that emits a performance.report event on
// the given cron spec (e.g. "@every 30s", "0 * * * * *"), reporting
// device counts, memory usage, and the bus's own drop counter so
// operators can see the telemetry path's own health.
func NewReportSink(bus *Bus, stats StatsProvider, spec string) (*ReportSink, error) {
	r := &ReportSink{
		bus:     bus,
		stats:   stats,
		cron:    cron.New(cron.WithSeconds()),
		dropped: bus.DroppedCount,
	}
	_, err := r.cron.AddFunc(spec, r.report)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins the cron schedule, in its own goroutine as *cron.Cron
// already manages.
func (r *ReportSink) Start() {
	r.cron.Start()
}

// Stop ends the cron schedule and waits for any in-flight report to
// finish, matching the teacher's Manager.Stop's drain-then-return shape.
func (r *ReportSink) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *ReportSink) report() {
	r.bus.Emit("performance.report", map[string]interface{}{
		"active_devices": r.stats.ActiveDevices(),
		"memory_used_mb": r.stats.MemoryUsedMB(),
		"events_dropped": r.dropped(),
		"reported_at":    time.Now(),
	})
}

// Handle implements Sink so ReportSink can also act as a plain logging
// sink for performance.report events, grounded in the teacher's use of
// log.Printf for trap delivery failures rather than a structured logger.
func (r *ReportSink) Handle(ev Event) {
	if ev.Name != "performance.report" {
		return
	}
	log.Printf("performance report: active_devices=%v memory_used_mb=%v events_dropped=%v",
		ev.Fields["active_devices"], ev.Fields["memory_used_mb"], ev.Fields["events_dropped"])
}
