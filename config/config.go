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

// Package config contains all the configuration related components
package config

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	multierror "github.com/hashicorp/go-multierror"
)

const (
	// DefaultPollingInterval is the number of seconds between two meter reads.
	DefaultPollingInterval = 60
	// DefaultExporterPort is the TCP port the scrape endpoint listens on.
	DefaultExporterPort = 9877
	// DefaultModbusDevice is the serial device the meter is attached to.
	DefaultModbusDevice = "/dev/ttyUSB0"
	// DefaultMeterID is the Modbus slave address of the meter.
	DefaultMeterID = 1
)

// maxPollingInterval is the longest interval in seconds a time.Duration holds.
const maxPollingInterval = math.MaxInt64 / int64(time.Second)

// Config represents the configuration of the dds238 exporter. It is filled
// from the command line, falling back to the environment and then to the
// defaults above.
type Config struct {
	PollingInterval  int
	ExporterPort     int
	ModbusDevice     string
	MeterID          int
	SerialConfigFile string

	// Serial holds the line settings, either the DDS238 defaults or the
	// contents of SerialConfigFile once Load has run.
	Serial Serial
}

// AddFlags adds the exporter settings to the given kingpin application. Every
// setting can also be given through its environment variable. A value that is
// present but not an integer makes a.Parse fail.
func AddFlags(a *kingpin.Application) *Config {
	c := &Config{Serial: DefaultSerial()}

	a.Flag(
		"polling-interval",
		"Seconds between two reads of the meter.",
	).Envar("POLLING_INTERVAL_SECONDS").Default(strconv.Itoa(DefaultPollingInterval)).SetValue(newIntValue(&c.PollingInterval))
	a.Flag(
		"exporter-port",
		"TCP port to expose the meter metrics on.",
	).Envar("EXPORTER_PORT").Default(strconv.Itoa(DefaultExporterPort)).SetValue(newIntValue(&c.ExporterPort))
	a.Flag(
		"modbus-device",
		"Serial device of the meter, or host:port of a Modbus TCP gateway.",
	).Envar("MODBUS_DEVICE").Default(DefaultModbusDevice).StringVar(&c.ModbusDevice)
	a.Flag(
		"meter-id",
		"Modbus slave address of the meter.",
	).Envar("METER_ID").Default(strconv.Itoa(DefaultMeterID)).SetValue(newIntValue(&c.MeterID))
	a.Flag(
		"serial.config-file",
		"YAML file with serial line settings. Built-in DDS238 defaults are used if empty.",
	).Default("").StringVar(&c.SerialConfigFile)

	return c
}

// Load reads the serial settings file, if one was given, and validates the
// resulting configuration.
func (c *Config) Load() error {
	if c.SerialConfigFile != "" {
		s, err := LoadSerial(c.SerialConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load serial settings: %v", err)
		}
		c.Serial = s
	}

	return c.Validate()
}

// Validate semantically validates the given config.
func (c *Config) Validate() error {
	var err error

	if c.PollingInterval <= 0 {
		err = multierror.Append(err,
			fmt.Errorf("polling interval must be positive, got %d", c.PollingInterval))
	}
	if int64(c.PollingInterval) > maxPollingInterval {
		err = multierror.Append(err,
			fmt.Errorf("polling interval must be at most %d seconds, got %d", maxPollingInterval, c.PollingInterval))
	}
	// The slave address travels as a single byte.
	if c.MeterID < 0 || c.MeterID > 255 {
		err = multierror.Append(err,
			fmt.Errorf("meter id must be between 0 and 255, got %d", c.MeterID))
	}
	if c.ModbusDevice == "" {
		err = multierror.Append(err, fmt.Errorf("modbus device must not be empty"))
	}
	if Protocol(c.ModbusDevice) == ModbusProtocolSerial {
		if serialErr := c.Serial.validate(); serialErr != nil {
			err = multierror.Append(err, serialErr)
		}
	}

	return err
}

// Interval returns the polling interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.PollingInterval) * time.Second
}

// ListenAddress returns the address the scrape endpoint binds to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf(":%d", c.ExporterPort)
}

// SlaveID returns the meter id as a Modbus slave address. Only meaningful
// after Validate succeeded.
func (c *Config) SlaveID() byte {
	return byte(c.MeterID)
}

// intValue is a kingpin.Value accepting base 10 integers only. kingpin's own
// int flags go through strconv.ParseFloat and would truncate "1.5" to 1.
type intValue int

func newIntValue(p *int) *intValue {
	return (*intValue)(p)
}

func (v *intValue) Set(s string) error {
	i, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*v = intValue(i)
	return nil
}

func (v *intValue) String() string {
	return strconv.Itoa(int(*v))
}

// ModbusProtocol specifies the protocol used to retrieve modbus data.
type ModbusProtocol string

const (
	// ModbusProtocolTCPIP represents modbus via TCP/IP.
	ModbusProtocolTCPIP ModbusProtocol = "tcp/ip"
	// ModbusProtocolSerial represents modbus via Serial.
	ModbusProtocolSerial ModbusProtocol = "serial"
)

// Protocol tells which transport the given device uses. Anything of the form
// host:port with a numeric port is reached over TCP, everything else is
// treated as a serial device path.
func Protocol(device string) ModbusProtocol {
	if strings.HasPrefix(device, "/") {
		return ModbusProtocolSerial
	}

	host, port, err := net.SplitHostPort(device)
	if err != nil || host == "" {
		return ModbusProtocolSerial
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return ModbusProtocolSerial
	}

	return ModbusProtocolTCPIP
}
