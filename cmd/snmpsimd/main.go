// Command snmpsimd is the simulator's CLI entrypoint: load config, wire
// up the OID/profile/resource/telemetry/device/server layers, start
// listening, and shut down cleanly on SIGINT/SIGTERM — pared down from
// the teacher's cmd/snmpsim/main.go to this core's scope (no SNMPv3,
// trap, or web UI flags; those are this core's Non-goals).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/devicesim/snmpsim/internal/config"
	"github.com/devicesim/snmpsim/internal/oidtree"
	"github.com/devicesim/snmpsim/internal/pool"
	"github.com/devicesim/snmpsim/internal/processor"
	"github.com/devicesim/snmpsim/internal/profiles"
	"github.com/devicesim/snmpsim/internal/resources"
	"github.com/devicesim/snmpsim/internal/server"
	"github.com/devicesim/snmpsim/internal/simlog"
	"github.com/devicesim/snmpsim/internal/telemetry"
	"github.com/devicesim/snmpsim/internal/walkparser"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	community := flag.String("community", "", "Default SNMP community (overrides config)")
	reportSpec := flag.String("report-cron", "@every 30s", "Cron spec for the periodic performance report")
	flag.Parse()

	checkFileDescriptors()

	cfg, err := config.Load(*configFile)
	if err != nil {
		simlog.Fatalf("Invalid configuration: %v", err)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *community != "" {
		cfg.Community = *community
	}

	simlog.Printf("Starting snmpsimd")
	simlog.Printf("Listen address: %s", cfg.ListenAddr)
	simlog.Printf("Device types configured: %d", len(cfg.DeviceTypes))
	simlog.Printf("Resource caps: max_devices=%d max_memory_mb=%d", cfg.MaxDevices, cfg.MaxMemoryMB)

	store := profiles.New()
	devicePorts := []int{}
	for deviceType, dt := range cfg.DeviceTypes {
		tree, behaviors, err := loadWalkFile(dt.WalkFile)
		if err != nil {
			simlog.Fatalf("Loading walk file for device_type %s: %v", deviceType, err)
		}
		store.Load(deviceType, tree, behaviors)
		for port := dt.PortRangeLo; port <= dt.PortRangeHi; port++ {
			devicePorts = append(devicePorts, port)
		}
	}

	bus := telemetry.NewBus(telemetry.NewPrometheusSink(prometheus.DefaultRegisterer))

	proc := processor.NewWithBulkCap(store, cfg.GetBulkMaxRepetitionsCap)
	mgr := resources.New(resources.Config{
		MaxDevices:      cfg.MaxDevices,
		MaxMemoryMB:     cfg.MaxMemoryMB,
		CleanupInterval: cfg.CleanupInterval(),
		IdleThreshold:   cfg.IdleThreshold(),
	}, bus)
	defer mgr.Stop()

	report, err := telemetry.NewReportSink(bus, mgr, *reportSpec)
	if err != nil {
		simlog.Fatalf("Invalid report-cron spec: %v", err)
	}
	bus.AddSink(report)
	report.Start()
	defer report.Stop()

	router := pool.New(cfg.PortResolver(), cfg.UpgradeConfigResolver(), proc, mgr, cfg.Community)

	srv := server.New(server.Config{
		ListenAddr:     cfg.ListenAddr,
		ListenAddr6:    cfg.ListenAddr6,
		SocketCount:    cfg.UDPSocketCount,
		BufferBytes:    cfg.UDPBufferBytes,
		WorkerPoolSize: cfg.WorkerPoolSize,
		RequestTimeout: cfg.RequestTimeout(),
		Community:      cfg.Community,
	}, router, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		simlog.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	}()

	if err := srv.Start(ctx, devicePorts); err != nil {
		simlog.Fatalf("Failed to start server: %v", err)
	}
	simlog.Printf("snmpsimd started successfully, serving %d device ports", len(devicePorts))

	<-ctx.Done()

	simlog.Printf("Shutting down...")
	srv.Stop()
	simlog.Printf("Graceful shutdown complete")
}

func loadWalkFile(path string) (*oidtree.Tree, map[string]string, error) {
	tree := oidtree.New()
	if path == "" {
		return tree, nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	report, err := walkparser.Parse(f, tree)
	if err != nil {
		return nil, nil, fmt.Errorf("parse: %w", err)
	}
	if len(report.Skipped) > 0 {
		simlog.Warnf("walk file %s: skipped %d malformed lines", path, len(report.Skipped))
	}
	return tree, nil, nil
}

func checkFileDescriptors() {
	var rlimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlimit); err != nil {
		simlog.Warnf("could not check file descriptor limit: %v", err)
		return
	}
	const headroom = 1024
	if rlimit.Cur < headroom {
		simlog.Warnf("current file descriptor limit (%d) may be insufficient; increase with: ulimit -n %d", rlimit.Cur, headroom*2)
	}
}
