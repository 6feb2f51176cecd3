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

package config

import (
	"fmt"
	"os"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	yaml "gopkg.in/yaml.v2"
)

// Serial defines the serial line parameters used to talk to the meter.
// Parity Values => N (None), E (Even), O (Odd)
//
// Default serial (DDS238 factory settings):
// Baudrate: 9600, Databits: 8, Stopbits: 1, Parity: N, Timeout: 1000ms
type Serial struct {
	Baudrate int    `yaml:"baudrate"`
	Databits int    `yaml:"databits"`
	Stopbits int    `yaml:"stopbits"`
	Parity   string `yaml:"parity"`
	// Timeout in milliseconds.
	Timeout int `yaml:"timeout"`
}

// DefaultSerial returns the factory line settings of a DDS238.
func DefaultSerial() Serial {
	return Serial{
		Baudrate: 9600,
		Databits: 8,
		Stopbits: 1,
		Parity:   "N",
		Timeout:  1000,
	}
}

// LoadSerial unmarshals the serial settings file. Settings missing from the
// file keep their default value.
func LoadSerial(path string) (Serial, error) {
	s := DefaultSerial()
	yamlFile, err := os.ReadFile(path)
	if err == nil {
		err = yaml.UnmarshalStrict(yamlFile, &s)
	}
	if err != nil {
		return s, err
	}

	return s, s.validate()
}

// TimeoutDuration returns the read timeout of a single transaction.
func (s Serial) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Millisecond
}

// validate tries to find inconsistencies in the serial parameters.
func (s Serial) validate() error {
	var err error

	if s.Baudrate < 0 || s.Stopbits < 0 || s.Databits < 0 || s.Timeout < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid negative value in serial settings"))
	}
	// Data bits: default, 5, 6, 7 or 8
	if s.Databits != 0 && (s.Databits < 5 || s.Databits > 8) {
		err = multierror.Append(err, fmt.Errorf("invalid data bits value %d", s.Databits))
	}
	// Stop bits: default, 1 or 2
	if s.Stopbits > 2 {
		err = multierror.Append(err, fmt.Errorf("invalid stop bits value %d", s.Stopbits))
	}
	// Parity: N (None), E (Even), O (Odd)
	if s.Parity != "N" && s.Parity != "E" && s.Parity != "O" && s.Parity != "" {
		err = multierror.Append(err, fmt.Errorf("invalid parity value %q, "+
			"expected N (None), E (Even) or O (Odd)", s.Parity))
	}

	return err
}
