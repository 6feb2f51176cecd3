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

// Package meter reads a DDS238 energy meter over Modbus.
package meter

import (
	"fmt"
	"time"

	"github.com/goburrow/modbus"

	"github.com/RichiH/dds238_exporter/config"
)

// handler is the part of a goburrow handler the client relies on.
type handler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// Client reads the meter through a single Modbus handler. The connection is
// opened lazily by the first transaction and dropped after a failed one, so
// the next Read starts from a fresh connection. A Client is not safe for
// concurrent use.
type Client struct {
	handler handler
	client  modbus.Client
}

// NewSerial returns a client talking Modbus RTU on the given serial device.
func NewSerial(device string, slaveID byte, s config.Serial) *Client {
	h := modbus.NewRTUClientHandler(device)
	if s.Baudrate != 0 {
		h.BaudRate = s.Baudrate
	}
	if s.Databits != 0 {
		h.DataBits = s.Databits
	}
	if s.Parity != "" {
		h.Parity = s.Parity
	}
	if s.Stopbits != 0 {
		h.StopBits = s.Stopbits
	}
	if s.Timeout != 0 {
		h.Timeout = s.TimeoutDuration()
	}
	h.SlaveId = slaveID

	return newClient(h)
}

// NewTCP returns a client talking Modbus TCP, e.g. to a serial gateway.
func NewTCP(address string, slaveID byte, timeout time.Duration) *Client {
	h := modbus.NewTCPClientHandler(address)
	if timeout != 0 {
		h.Timeout = timeout
	}
	h.SlaveId = slaveID

	return newClient(h)
}

func newClient(h handler) *Client {
	return &Client{
		handler: h,
		client:  modbus.NewClient(h),
	}
}

// Read performs one transaction against the meter and decodes the result.
func (c *Client) Read() (Reading, error) {
	raw, err := c.client.ReadHoldingRegisters(registerStart, registerCount)
	if err != nil {
		// Ignore close errors, the transaction error is the interesting one.
		_ = c.handler.Close()
		return Reading{}, fmt.Errorf("failed to read meter registers: %v", err)
	}

	return parseReading(raw)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.handler.Close()
}
