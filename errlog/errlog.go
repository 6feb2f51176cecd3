// Copyright 2017 Alejandro Sirgo Rica
//
// This file is part of Modbus_exporter.
//
//     Modbus_exporter is free software: you can redistribute it and/or modify
//     it under the terms of the GNU General Public License as published by
//     the Free Software Foundation, either version 3 of the License, or
//     (at your option) any later version.
//
//     Modbus_exporter is distributed in the hope that it will be useful,
//     but WITHOUT ANY WARRANTY; without even the implied warranty of
//     MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
//     GNU General Public License for more details.
//
//     You should have received a copy of the GNU General Public License
//     along with Modbus_exporter.  If not, see <http://www.gnu.org/licenses/>.

// Package errlog reports recurring errors without repeating them on every
// poll of the meter.
package errlog

import (
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Reporter logs an error the first time it is seen and then stays quiet about
// it as long as it keeps recurring within the window.
type Reporter struct {
	logger log.Logger
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	trackLogs map[string]time.Time
}

// New returns a Reporter. A window of twice the polling interval silences an
// error that shows up on every poll.
func New(logger log.Logger, window time.Duration) *Reporter {
	return &Reporter{
		logger:    logger,
		window:    window,
		now:       time.Now,
		trackLogs: make(map[string]time.Time),
	}
}

// Report logs err unless the same message was reported less than one window
// ago. It returns whether err was logged.
func (r *Reporter) Report(err error) bool {
	if err == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	msg := err.Error()
	t, ok := r.trackLogs[msg]
	// logs the error if it has not been logged yet or
	// if the error didn't happen in the last window.
	logged := !ok || now.Sub(t) >= r.window
	if logged {
		level.Error(r.logger).Log("msg", "Failed to read meter", "err", err)
	}
	r.trackLogs[msg] = now

	return logged
}

// Reset forgets every tracked error, so the next failure is logged again.
// Called once the meter answers again.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.trackLogs) > 0 {
		level.Info(r.logger).Log("msg", "Meter reachable again")
	}
	r.trackLogs = make(map[string]time.Time)
}
