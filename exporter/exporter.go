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

// Package exporter polls the meter and publishes its values as Prometheus
// gauges.
package exporter

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/RichiH/dds238_exporter/errlog"
	"github.com/RichiH/dds238_exporter/meter"
)

// Reader returns the current values of a meter.
type Reader interface {
	Read() (meter.Reading, error)
}

// Exporter copies readings of a meter into a GaugeSet at a fixed interval.
type Exporter struct {
	reader    Reader
	gauges    *GaugeSet
	interval  time.Duration
	logger    log.Logger
	errors    *errlog.Reporter
	telemetry *telemetry
}

// New returns an exporter polling r every interval. Its own metrics are
// registered with reg.
func New(r Reader, g *GaugeSet, interval time.Duration, reg prometheus.Registerer, logger log.Logger) *Exporter {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Exporter{
		reader:    r,
		gauges:    g,
		interval:  interval,
		logger:    logger,
		errors:    errlog.New(logger, 2*interval),
		telemetry: newTelemetry(reg),
	}
}

// Fetch reads the meter once and, on success, updates every gauge. On error
// no gauge is touched and the previous values stay exposed.
func (e *Exporter) Fetch() error {
	start := time.Now()
	r, err := e.reader.Read()
	e.telemetry.readDuration.Observe(time.Since(start).Seconds())
	e.telemetry.reads.Inc()

	if err != nil {
		e.telemetry.readErrors.Inc()
		e.errors.Report(err)
		return err
	}

	e.gauges.Update(r)
	e.telemetry.lastSuccess.SetToCurrentTime()
	e.errors.Reset()
	level.Debug(e.logger).Log("msg", "Meter read", "voltage", r.Voltage, "current", r.Current, "power", r.Power)

	return nil
}

// Run fetches immediately and then once per interval until ctx is done.
// Failed fetches are skipped, the next attempt happens on the next tick.
func (e *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		// Errors are already reported by Fetch.
		_ = e.Fetch()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
