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

// fake_meter serves the register map of a DDS238 over Modbus TCP. Point the
// exporter at it with MODBUS_DEVICE=127.0.0.1:1502.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/tbrandon/mbserver"
)

func main() {
	address := kingpin.Flag("listen-address", "Modbus TCP address to listen on.").
		Default("127.0.0.1:1502").String()
	kingpin.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))

	serv := mbserver.NewServer()
	regs := serv.HoldingRegisters
	regs[0x08], regs[0x09] = 0, 520   // export energy 5.20 kWh
	regs[0x0A], regs[0x0B] = 1, 34514 // import energy 1000.50 kWh
	regs[0x0C] = 2305                 // voltage 230.5 V
	regs[0x0D] = 120                  // current 1.20 A
	regs[0x0E] = 276                  // power 276 W
	regs[0x0F] = 12                   // reactive power 12 VAr
	regs[0x10] = 980                  // power factor 0.980
	regs[0x11] = 5000                 // frequency 50.00 Hz

	if err := serv.ListenTCP(*address); err != nil {
		level.Error(logger).Log("msg", "Failed to listen", "err", err)
		os.Exit(1)
	}
	defer serv.Close()

	level.Info(logger).Log("msg", "Fake DDS238 listening", "address", *address)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
