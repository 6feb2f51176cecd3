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

package exporter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/RichiH/dds238_exporter/meter"
)

var sampleReading = meter.Reading{
	Current:       1.2,
	Voltage:       230.5,
	Frequency:     50.0,
	Power:         276.6,
	PowerFactor:   0.98,
	ReactivePower: 12.3,
	ImportEnergy:  1000.5,
	ExportEnergy:  5.2,
}

var errTimeout = errors.New("serial: timeout")

type result struct {
	reading meter.Reading
	err     error
}

// stubReader hands out the queued results in order and repeats the last one.
// Every call is announced on calls.
type stubReader struct {
	mu      sync.Mutex
	results []result
	calls   chan time.Time
}

func newStubReader(results ...result) *stubReader {
	return &stubReader{results: results, calls: make(chan time.Time, 100)}
}

func (s *stubReader) Read() (meter.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case s.calls <- time.Now():
	default:
	}

	r := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return r.reading, r.err
}

func newTestExporter(r Reader, interval time.Duration) (*Exporter, *prometheus.Registry, *prometheus.Registry) {
	meterReg := prometheus.NewRegistry()
	telemetryReg := prometheus.NewRegistry()
	return New(r, NewGaugeSet(meterReg), interval, telemetryReg, nil), meterReg, telemetryReg
}

func TestFetch(t *testing.T) {
	e, reg, _ := newTestExporter(newStubReader(result{reading: sampleReading}), time.Minute)

	if err := e.Fetch(); err != nil {
		t.Fatal(err)
	}

	expected := `
# HELP current Current
# TYPE current gauge
current 1.2
# HELP export_energy Export Energy
# TYPE export_energy gauge
export_energy 5.2
# HELP frequency Frequency
# TYPE frequency gauge
frequency 50
# HELP import_energy Import Energy
# TYPE import_energy gauge
import_energy 1000.5
# HELP power Power
# TYPE power gauge
power 276.6
# HELP power_factor Power Factor
# TYPE power_factor gauge
power_factor 0.98
# HELP reactive_power Reactive Power
# TYPE reactive_power gauge
reactive_power 12.3
# HELP voltage Voltage
# TYPE voltage gauge
voltage 230.5
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected)); err != nil {
		t.Fatal(err)
	}
}

func TestFetchErrorKeepsPreviousValues(t *testing.T) {
	r := newStubReader(
		result{reading: sampleReading},
		result{err: errTimeout},
	)
	e, _, telemetryReg := newTestExporter(r, time.Minute)

	if err := e.Fetch(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := e.Fetch(); !errors.Is(err, errTimeout) {
			t.Fatalf("expected timeout error but got %v", err)
		}
	}

	for name, expected := range values(sampleReading) {
		if v := testutil.ToFloat64(e.gauges.gauges[name]); v != expected {
			t.Errorf("%v: expected stale value %v but got %v", name, expected, v)
		}
	}

	if n := testutil.ToFloat64(e.telemetry.reads); n != 4 {
		t.Errorf("expected 4 reads but got %v", n)
	}
	if n := testutil.ToFloat64(e.telemetry.readErrors); n != 3 {
		t.Errorf("expected 3 read errors but got %v", n)
	}
	if n, err := testutil.GatherAndCount(telemetryReg); err != nil || n != 4 {
		t.Errorf("expected 4 telemetry metrics but got %v (%v)", n, err)
	}
}

func TestFetchErrorBeforeFirstSuccess(t *testing.T) {
	e, _, _ := newTestExporter(newStubReader(result{err: errTimeout}), time.Minute)

	if err := e.Fetch(); err == nil {
		t.Fatal("expected error")
	}
	for name, gauge := range e.gauges.gauges {
		if v := testutil.ToFloat64(gauge); v != 0 {
			t.Errorf("%v: expected untouched gauge but got %v", name, v)
		}
	}
	if v := testutil.ToFloat64(e.telemetry.lastSuccess); v != 0 {
		t.Errorf("expected no successful read timestamp but got %v", v)
	}
}

func TestRunFetchesImmediately(t *testing.T) {
	r := newStubReader(result{reading: sampleReading})
	e, _, _ := newTestExporter(r, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	select {
	case <-r.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("expected first fetch before the first interval elapsed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("expected Run to return after cancellation")
	}
}

func TestRunInterval(t *testing.T) {
	const interval = 50 * time.Millisecond

	// Failures must not stop the loop.
	r := newStubReader(
		result{err: errTimeout},
		result{err: errTimeout},
		result{reading: sampleReading},
	)
	e, _, _ := newTestExporter(r, interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	var calls []time.Time
	for len(calls) < 4 {
		select {
		case c := <-r.calls:
			calls = append(calls, c)
		case <-time.After(5 * time.Second):
			t.Fatalf("loop stalled after %d fetches", len(calls))
		}
	}

	for i := 1; i < len(calls); i++ {
		// Leave room for timer jitter.
		if d := calls[i].Sub(calls[i-1]); d < interval-10*time.Millisecond {
			t.Errorf("fetch %d started %v after the previous one, expected about %v", i, d, interval)
		}
	}
}

func TestScrapeWhileMeterFails(t *testing.T) {
	e, reg, _ := newTestExporter(newStubReader(result{err: errTimeout}), time.Minute)
	_ = e.Fetch()

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 but got %v", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range e.gauges.Names() {
		if !strings.Contains(string(body), "\n"+name+" 0\n") {
			t.Errorf("expected %v to be exposed with its initial value, got:\n%s", name, body)
		}
	}
}
