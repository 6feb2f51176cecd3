// Copyright 2019 Richard Hartmann
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/promlog"
	promlogflag "github.com/prometheus/common/promlog/flag"
	"github.com/prometheus/common/version"
	"github.com/prometheus/exporter-toolkit/web"

	"github.com/RichiH/dds238_exporter/config"
	"github.com/RichiH/dds238_exporter/exporter"
	"github.com/RichiH/dds238_exporter/meter"
)

const (
	exporterName  = "dds238_exporter"
	metricsPath   = "/metrics"
	telemetryPath = "/telemetry"
)

func main() {
	promlogConfig := &promlog.Config{}
	promlogflag.AddFlags(kingpin.CommandLine, promlogConfig)
	cfg := config.AddFlags(kingpin.CommandLine)

	kingpin.Version(version.Print(exporterName))
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := promlog.New(promlogConfig)

	if err := cfg.Load(); err != nil {
		level.Error(logger).Log("msg", "Invalid configuration", "err", err)
		os.Exit(1)
	}

	level.Info(logger).Log("msg", "Starting "+exporterName, "version", version.Info())
	level.Info(logger).Log("msg", "Build context", "build_context", version.BuildContext())

	meterRegistry := prometheus.NewRegistry()
	telemetryRegistry := prometheus.NewRegistry()
	telemetryRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		version.NewCollector(exporterName),
	)

	client := newMeterClient(cfg)
	defer client.Close()

	e := exporter.New(
		client,
		exporter.NewGaugeSet(meterRegistry),
		cfg.Interval(),
		telemetryRegistry,
		log.With(logger, "device", cfg.ModbusDevice, "meter_id", cfg.MeterID),
	)

	landingPage, err := web.NewLandingPage(web.LandingConfig{
		Name:        "DDS238 Exporter",
		Description: "Prometheus exporter for DDS238 energy meters",
		Version:     version.Info(),
		Links: []web.LandingLinks{
			{Address: metricsPath, Text: "Meter metrics"},
			{Address: telemetryPath, Text: "Exporter telemetry"},
		},
	})
	if err != nil {
		level.Error(logger).Log("err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Handler:           newRouter(meterRegistry, telemetryRegistry, landingPage),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The toolkit logs "Listening on" once the port is bound.
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- web.ListenAndServe(srv, webFlags(cfg.ListenAddress()), logger)
	}()

	loopDone := startLoop(ctx, e)

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		level.Debug(logger).Log("msg", "Failed to notify systemd", "err", err)
	}

	select {
	case err := <-serveErr:
		level.Error(logger).Log("msg", "HTTP server failed", "err", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	level.Info(logger).Log("msg", "Shutting down")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		level.Error(logger).Log("msg", "HTTP server shutdown failed", "err", err)
	}
	// Let an in-flight read finish before the deferred client.Close.
	<-loopDone
}

// startLoop runs e until ctx is done. The returned channel is closed once
// Run has returned.
func startLoop(ctx context.Context, e *exporter.Exporter) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx)
	}()
	return done
}

// newMeterClient picks the Modbus transport matching the configured device.
func newMeterClient(cfg *config.Config) *meter.Client {
	if config.Protocol(cfg.ModbusDevice) == config.ModbusProtocolTCPIP {
		return meter.NewTCP(cfg.ModbusDevice, cfg.SlaveID(), cfg.Serial.TimeoutDuration())
	}
	return meter.NewSerial(cfg.ModbusDevice, cfg.SlaveID(), cfg.Serial)
}

// webFlags serves on the single configured address, without TLS or
// authentication.
func webFlags(address string) *web.FlagConfig {
	addresses := []string{address}
	systemdSocket := false
	configFile := ""

	return &web.FlagConfig{
		WebListenAddresses: &addresses,
		WebSystemdSocket:   &systemdSocket,
		WebConfigFile:      &configFile,
	}
}

func newRouter(meterGatherer, telemetryGatherer prometheus.Gatherer, landingPage http.Handler) *http.ServeMux {
	router := http.NewServeMux()
	router.Handle(metricsPath, promhttp.HandlerFor(meterGatherer, promhttp.HandlerOpts{}))
	router.Handle(telemetryPath, promhttp.HandlerFor(telemetryGatherer, promhttp.HandlerOpts{}))
	router.Handle("/", landingPage)
	return router
}
