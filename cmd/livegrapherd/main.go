// Command livegrapherd runs a standalone LiveGrapher host process: it
// loads configuration from the environment, wires up structured logging
// and a Prometheus metrics endpoint, starts the engine, and blocks until
// SIGINT/SIGTERM before shutting everything down in order.
//
// Data publication (AddData/AddDataAt) is left to whatever in-process
// producer embeds this binary's build, or to a future wire-ingest
// frontend; this binary only owns the process lifecycle.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	livegrapher "github.com/frc3512/livegrapher-host"
	"github.com/frc3512/livegrapher-host/internal/config"
	"github.com/frc3512/livegrapher-host/internal/obslog"
	"github.com/frc3512/livegrapher-host/internal/sysmon"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootstrap := obslog.New(obslog.Config{Level: zerolog.InfoLevel, Format: obslog.FormatPretty})

	cfg, err := config.Load(&bootstrap)
	if err != nil {
		bootstrap.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		bootstrap.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("invalid log level")
	}
	format := obslog.FormatJSON
	if cfg.LogFormat == "pretty" {
		format = obslog.FormatPretty
	}
	logger := obslog.New(obslog.Config{Level: level, Format: format})
	cfg.LogConfig(logger)

	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("starting livegrapherd")

	opts := livegrapher.DefaultOptions()
	opts.MaxQueueBytesPerClient = cfg.MaxQueueBytesPerClient
	opts.ListenBacklog = cfg.ListenBacklog
	opts.TCPNoDelay = cfg.TCPNoDelay
	opts.CompatBuggyIDMask = cfg.CompatBuggyIDMask
	opts.AcceptIPBurst = cfg.AcceptIPBurst
	opts.AcceptIPRate = cfg.AcceptIPRate
	opts.AcceptGlobalBurst = cfg.AcceptGlobalBurst
	opts.AcceptGlobalRate = cfg.AcceptGlobalRate
	opts.Logger = logger

	addr, port, err := splitHostPort(cfg.ListenAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.ListenAddr).Msg("invalid listen address")
	}
	opts.BindAddress = addr

	engine, err := livegrapher.New(port, opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start engine")
	}

	sysmonInterval, err := time.ParseDuration(cfg.SysmonInterval)
	if err != nil {
		logger.Fatal().Err(err).Str("sysmon_interval", cfg.SysmonInterval).Msg("invalid sysmon interval")
	}
	mon, err := sysmon.New(engine.Metrics(), logger, sysmonInterval)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start system monitor")
	}
	monCtx, cancelMon := context.WithCancel(context.Background())
	mon.Start(monCtx)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", engine.Metrics().Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	actualPort, err := engine.Port()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine bound port")
	} else {
		logger.Info().
			Uint16("port", actualPort).
			Str("metrics_addr", cfg.MetricsAddr).
			Msg("livegrapherd is listening")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down livegrapherd")

	cancelMon()
	mon.Stop()
	engine.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server did not shut down cleanly")
	}

	logger.Info().Msg("livegrapherd stopped")
}

// splitHostPort parses a "host:port" listen address into a bind address
// and numeric port, defaulting the host to 0.0.0.0 when omitted (e.g.
// ":8080").
func splitHostPort(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	if host == "" {
		host = "0.0.0.0"
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, err
	}
	return host, uint16(port), nil
}
