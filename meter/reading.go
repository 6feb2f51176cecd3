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

package meter

import (
	"encoding/binary"
	"fmt"
)

// Reading is a snapshot of the meter's electrical values taken in a single
// Modbus transaction.
type Reading struct {
	Current       float64 // A
	Voltage       float64 // V
	Frequency     float64 // Hz
	Power         float64 // W, negative when exporting
	PowerFactor   float64
	ReactivePower float64 // VAr
	ImportEnergy  float64 // kWh
	ExportEnergy  float64 // kWh
}

// DDS238 holding registers. Every value is read in one block starting at
// registerStart.
const (
	registerStart uint16 = 0x00
	registerCount uint16 = 0x12
)

const (
	regExportEnergy  = 0x08 // uint32, 0.01 kWh
	regImportEnergy  = 0x0A // uint32, 0.01 kWh
	regVoltage       = 0x0C // uint16, 0.1 V
	regCurrent       = 0x0D // uint16, 0.01 A
	regPower         = 0x0E // int16, 1 W
	regReactivePower = 0x0F // int16, 1 VAr
	regPowerFactor   = 0x10 // uint16, 0.001
	regFrequency     = 0x11 // uint16, 0.01 Hz
)

// InsufficientRegistersError is returned by parseReading whenever the meter
// answered with fewer registers than requested.
type InsufficientRegistersError struct {
	e string
}

// Error implements the Golang error interface.
func (e *InsufficientRegistersError) Error() string {
	return fmt.Sprintf("insufficient amount of registers provided: %v", e.e)
}

// parseReading decodes the register block starting at registerStart. The two
// bytes of a register are in network order, 32 bit values have their high
// word first.
func parseReading(rawData []byte) (Reading, error) {
	if len(rawData) < int(registerCount)*2 {
		return Reading{}, &InsufficientRegistersError{
			fmt.Sprintf("expected %v, got %v", registerCount, len(rawData)/2),
		}
	}

	return Reading{
		Current:       float64(uint16At(rawData, regCurrent)) / 100,
		Voltage:       float64(uint16At(rawData, regVoltage)) / 10,
		Frequency:     float64(uint16At(rawData, regFrequency)) / 100,
		Power:         float64(int16(uint16At(rawData, regPower))),
		PowerFactor:   float64(uint16At(rawData, regPowerFactor)) / 1000,
		ReactivePower: float64(int16(uint16At(rawData, regReactivePower))),
		ImportEnergy:  float64(uint32At(rawData, regImportEnergy)) / 100,
		ExportEnergy:  float64(uint32At(rawData, regExportEnergy)) / 100,
	}, nil
}

func uint16At(b []byte, register int) uint16 {
	offset := (register - int(registerStart)) * 2
	return binary.BigEndian.Uint16(b[offset : offset+2])
}

func uint32At(b []byte, register int) uint32 {
	offset := (register - int(registerStart)) * 2
	return binary.BigEndian.Uint32(b[offset : offset+4])
}
