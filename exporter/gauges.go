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
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/RichiH/dds238_exporter/meter"
)

// Metric names, one per field of meter.Reading.
const (
	Current       = "current"
	ExportEnergy  = "export_energy"
	Frequency     = "frequency"
	ImportEnergy  = "import_energy"
	Power         = "power"
	PowerFactor   = "power_factor"
	ReactivePower = "reactive_power"
	Voltage       = "voltage"
)

var help = map[string]string{
	Current:       "Current",
	ExportEnergy:  "Export Energy",
	Frequency:     "Frequency",
	ImportEnergy:  "Import Energy",
	Power:         "Power",
	PowerFactor:   "Power Factor",
	ReactivePower: "Reactive Power",
	Voltage:       "Voltage",
}

// GaugeSet holds one gauge per meter value. The energy values are cumulative
// on the meter but are still exposed as gauges, their last value is all that
// is published.
type GaugeSet struct {
	gauges map[string]prometheus.Gauge
}

// NewGaugeSet creates the gauges and registers them with reg. It panics if
// any of them is already registered there.
func NewGaugeSet(reg prometheus.Registerer) *GaugeSet {
	g := &GaugeSet{gauges: make(map[string]prometheus.Gauge, len(help))}

	for name, h := range help {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name,
			Help: h,
		})
		reg.MustRegister(gauge)
		g.gauges[name] = gauge
	}

	return g
}

// Set overwrites the value of the named gauge.
func (g *GaugeSet) Set(name string, v float64) error {
	gauge, ok := g.gauges[name]
	if !ok {
		return fmt.Errorf("unknown gauge %q", name)
	}
	gauge.Set(v)
	return nil
}

// Update copies every value of r into its gauge.
func (g *GaugeSet) Update(r meter.Reading) {
	for name, v := range values(r) {
		g.gauges[name].Set(v)
	}
}

// Names returns the gauge names in alphabetical order.
func (g *GaugeSet) Names() []string {
	names := make([]string, 0, len(g.gauges))
	for name := range g.gauges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func values(r meter.Reading) map[string]float64 {
	return map[string]float64{
		Current:       r.Current,
		ExportEnergy:  r.ExportEnergy,
		Frequency:     r.Frequency,
		ImportEnergy:  r.ImportEnergy,
		Power:         r.Power,
		PowerFactor:   r.PowerFactor,
		ReactivePower: r.ReactivePower,
		Voltage:       r.Voltage,
	}
}
