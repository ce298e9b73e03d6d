package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/buffer"
	"github.com/markus-lassfolk/trackerd/pkg/config"
	"github.com/markus-lassfolk/trackerd/pkg/gps"
	"github.com/markus-lassfolk/trackerd/pkg/hardware"
	"github.com/markus-lassfolk/trackerd/pkg/logx"
	"github.com/markus-lassfolk/trackerd/pkg/metrics"
	"github.com/markus-lassfolk/trackerd/pkg/modem"
	"github.com/markus-lassfolk/trackerd/pkg/movement"
	"github.com/markus-lassfolk/trackerd/pkg/pidfile"
	"github.com/markus-lassfolk/trackerd/pkg/scheduler"
	"github.com/markus-lassfolk/trackerd/pkg/telem"
	"github.com/markus-lassfolk/trackerd/pkg/transport"
)

var (
	configPath = flag.String("config", "/etc/trackerd/config.yaml", "Path to configuration file")
	pidPath    = flag.String("pid-file", "/var/run/trackerd.pid", "Path to PID file")
	logLevel   = flag.String("log-level", "", "Override log level (debug|info|warn|error|trace)")
	version    = flag.Bool("version", false, "Show version information")
	force      = flag.Bool("force", false, "Force start by removing stale PID file")
)

const (
	AppName    = "trackerd"
	AppVersion = "1.0.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	effectiveLogLevel := "info"
	if *logLevel != "" {
		effectiveLogLevel = *logLevel
	}
	logger := logx.NewLogger(effectiveLogLevel, AppName)

	pidFile := pidfile.New(*pidPath)
	running, existingPID, err := pidFile.CheckRunning()
	if err != nil {
		logger.Error("Failed to check for running instance", "error", err)
		os.Exit(1)
	}
	if running {
		if !*force {
			logger.Error("Another instance is already running", "existing_pid", existingPID, "pid_file", *pidPath)
			os.Exit(1)
		}
		logger.Warn("Another instance is running, but force flag specified", "existing_pid", existingPID)
		if err := pidFile.ForceRemove(); err != nil {
			logger.Error("Failed to remove existing PID file", "error", err)
			os.Exit(1)
		}
	}
	if err := pidFile.Create(); err != nil {
		logger.Error("Failed to create PID file", "error", err, "path", *pidPath)
		os.Exit(1)
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Error("Failed to remove PID file", "error", err)
		}
	}()

	logger.Info("Starting tracker daemon", "version", AppVersion, "pid", os.Getpid())

	// Missing required values are fatal here, before the loop ever starts.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logger.SetLevel(cfg.LogLevel)

	logger.Info("Configuration loaded",
		"device_id", cfg.DeviceID,
		"primary_bearer", cfg.PrimaryBearer,
		"lte_fallback", cfg.EnableLTEFallback,
		"neo6m_fallback", cfg.EnableNeo6MFallback,
		"offline_storage", cfg.EnableOfflineStorage)

	session := telem.NewSession(cfg.DeviceID, cfg.DeviceToken, cfg.IdleInterval())

	// The SIM7600 carries both the primary GNSS and the cellular bearer,
	// so the modem channel is always required.
	modemPort, err := hardware.OpenPort(cfg.ModemDevice, cfg.ModemBaudRate)
	if err != nil {
		logger.Error("Failed to open modem port", "device", cfg.ModemDevice, "error", err)
		os.Exit(1)
	}
	defer modemPort.Close()

	var modemPin hardware.Pin
	if cfg.ModemPowerPin > 0 {
		if modemPin, err = hardware.NewGPIOPin(cfg.ModemPowerPin); err != nil {
			logger.Warn("Modem power pin unavailable", "pin", cfg.ModemPowerPin, "error", err)
		}
	}
	channel := modem.New(modemPort, modemPin, cfg.ATCommandTimeout(), logger.WithComponent("modem"))

	primarySource := gps.NewSIM7600Source(channel, logger.WithComponent("gps"))
	var secondarySource gps.Source
	if cfg.EnableNeo6MFallback {
		gpsPort, err := hardware.OpenPort(cfg.GPSDevice, cfg.GPSBaudRate)
		if err != nil {
			logger.Warn("Secondary GPS port unavailable, continuing without it", "device", cfg.GPSDevice, "error", err)
		} else {
			defer gpsPort.Close()
			secondarySource = gps.NewNeo6MSource(gpsPort, logger.WithComponent("gps"))
		}
	}

	var gpsPin hardware.Pin
	if cfg.GPSPowerPin > 0 {
		if gpsPin, err = hardware.NewGPIOPin(cfg.GPSPowerPin); err != nil {
			logger.Warn("GPS power pin unavailable", "pin", cfg.GPSPowerPin, "error", err)
		}
	}

	locationArbiter := gps.NewArbiter(primarySource, secondarySource, gpsPin,
		cfg.GPSTimeout(), cfg.PowerCycleAfter, logger.WithComponent("gps"))

	classifier := movement.NewClassifier(cfg.MovementThresholdM, cfg.MovingInterval(), cfg.IdleInterval())

	var spool *buffer.Spool
	if cfg.EnableOfflineStorage {
		spool, err = buffer.OpenSpool(cfg.SpoolPath)
		if err != nil {
			logger.Error("Failed to open offline spool", "path", cfg.SpoolPath, "error", err)
			os.Exit(1)
		}
		defer spool.Close()
	}
	buf, err := buffer.New(cfg.MaxOfflineRecords, spool, logger.WithComponent("buffer"))
	if err != nil {
		logger.Error("Failed to initialize offline buffer", "error", err)
		os.Exit(1)
	}
	session.RestoreSeq(buf.MaxSeq())

	primaryBearer, fallbackBearer, err := buildBearers(cfg, channel, logger)
	if err != nil {
		logger.Error("Failed to build transport bearers", "error", err)
		os.Exit(1)
	}
	transportArbiter := transport.NewArbiter(primaryBearer, fallbackBearer, session,
		cfg.ReconnectDelay(), cfg.FailoverAfter, logger.WithComponent("transport"))
	defer transportArbiter.Close()

	m := metrics.New()
	transportArbiter.AddFailoverCallback(func(from, to string) {
		m.Failovers.Inc()
	})

	sched := scheduler.New(cfg, locationArbiter, classifier, transportArbiter, buf, session, m,
		logger.WithComponent("scheduler"))

	// The status document reads loop-owned state, so the scheduler
	// evaluates it on the loop goroutine and the HTTP handler only ever
	// sees the published snapshot.
	startTime := time.Now()
	sched.SetStatusSource(func() interface{} {
		return map[string]interface{}{
			"device_id":         cfg.DeviceID,
			"version":           AppVersion,
			"uptime_s":          int64(time.Since(startTime).Seconds()),
			"transport_state":   transportArbiter.State().String(),
			"active_bearer":     transportArbiter.ActiveBearer(),
			"failovers":         transportArbiter.Failovers(),
			"sampling_interval": session.SamplingInterval().String(),
			"buffer_depth":      buf.Len(),
			"buffer_dropped":    buf.Dropped(),
			"gps_sources":       locationArbiter.Health(),
		}
	})

	var metricsServer *metrics.Server
	if cfg.MetricsListener {
		metricsServer = metrics.NewServer(m, sched.Status, logger.WithComponent("metrics"))
		if err := metricsServer.Start(cfg.MetricsPort); err != nil {
			logger.Error("Failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer metricsServer.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go sched.Run(ctx)

	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)
	cancel()

	// Give the in-flight tick a moment to finish before closing ports.
	time.Sleep(500 * time.Millisecond)
	logger.Info("Shutdown complete")
}

// buildBearers selects the strategy implementations once at startup from
// configuration.
func buildBearers(cfg *config.Config, channel *modem.Channel, logger *logx.Logger) (transport.Bearer, transport.Bearer, error) {
	tlog := logger.WithComponent("transport")

	var primary transport.Bearer
	switch cfg.PrimaryBearer {
	case "mqtt":
		primary = transport.NewMQTTBearer(cfg, tlog)
	case "http":
		primary = transport.NewHTTPBearer(cfg, tlog)
	case "cellular":
		primary = transport.NewCellularBearer(channel, cfg, tlog)
	default:
		return nil, nil, fmt.Errorf("unknown primary bearer %q", cfg.PrimaryBearer)
	}

	var fallback transport.Bearer
	if cfg.EnableLTEFallback && cfg.PrimaryBearer != "cellular" {
		fallback = transport.NewCellularBearer(channel, cfg, tlog)
	}
	return primary, fallback, nil
}
