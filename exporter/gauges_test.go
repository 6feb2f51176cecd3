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
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGaugeSetNames(t *testing.T) {
	g := NewGaugeSet(prometheus.NewRegistry())

	expected := []string{
		"current",
		"export_energy",
		"frequency",
		"import_energy",
		"power",
		"power_factor",
		"reactive_power",
		"voltage",
	}
	if names := g.Names(); !reflect.DeepEqual(names, expected) {
		t.Fatalf("expected %v but got %v", expected, names)
	}
}

func TestGaugeSetSet(t *testing.T) {
	g := NewGaugeSet(prometheus.NewRegistry())

	if err := g.Set(Voltage, 229.9); err != nil {
		t.Fatal(err)
	}
	if err := g.Set(Voltage, 231.2); err != nil {
		t.Fatal(err)
	}
	// Last write wins, nothing accumulates.
	if v := testutil.ToFloat64(g.gauges[Voltage]); v != 231.2 {
		t.Fatalf("expected 231.2 but got %v", v)
	}

	if err := g.Set("total_energy", 1); err == nil {
		t.Fatal("expected unknown gauge to fail")
	}
}

func TestGaugeSetUpdate(t *testing.T) {
	g := NewGaugeSet(prometheus.NewRegistry())
	g.Update(sampleReading)

	for name, expected := range values(sampleReading) {
		if v := testutil.ToFloat64(g.gauges[name]); v != expected {
			t.Errorf("%v: expected %v but got %v", name, expected, v)
		}
	}
}

func TestGaugeSetDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewGaugeSet(reg)

	defer func() {
		if recover() == nil {
			t.Fatal("expected registering the gauges twice to panic")
		}
	}()
	NewGaugeSet(reg)
}
