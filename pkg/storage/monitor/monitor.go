// StorageWatch
// Copyright (c) 2025 The StorageWatch Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of StorageWatch.
//
// StorageWatch is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// StorageWatch is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with StorageWatch.  If not, see <http://www.gnu.org/licenses/>.

// Package monitor bridges platform disk notifications into a uniform
// event stream and produces point-in-time snapshots of attached storage.
package monitor

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/storagewatch/storagewatch/pkg/config"
	"github.com/storagewatch/storagewatch/pkg/helpers/syncutil"
	"github.com/storagewatch/storagewatch/pkg/storage"
	"github.com/storagewatch/storagewatch/pkg/storage/registry"
)

// ErrAlreadyRunning is returned by Run when the monitor's event loop is
// already active.
var ErrAlreadyRunning = errors.New("monitor already running")

// Monitor observes attached storage. Snapshot may be called from any
// goroutine; it performs blocking enumeration syscalls. Run blocks the
// calling goroutine until Stop is called from another one.
type Monitor struct {
	open  func() (registry.Session, error)
	probe FreeSpaceFunc

	mu      syncutil.Mutex
	session registry.Session
	ctx     *callbackContext
}

// New returns a monitor using the platform disk registry, tuned by cfg.
// A nil cfg uses backend defaults.
func New(cfg *config.Instance) *Monitor {
	var opts registry.Options
	if cfg != nil {
		opts = registry.Options{
			Debounce:             cfg.Debounce(),
			PollInterval:         cfg.PollInterval(),
			IncludeSystemVolumes: cfg.IncludeSystemVolumes(),
			IgnoreFilesystems:    cfg.IgnoreFilesystems(),
		}
	}
	return &Monitor{
		open:  func() (registry.Session, error) { return registry.Open(opts) },
		probe: registry.FreeSpace,
	}
}

// Snapshot enumerates all currently attached devices and volumes. Each
// call uses an independent registry session. Two consecutive calls on a
// static system return equal sets; device output is ordered by canonical
// ID.
func (m *Monitor) Snapshot() ([]storage.Device, []storage.Volume, error) {
	sess, err := m.open()
	if err != nil {
		return nil, nil, fmt.Errorf("open disk session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debug().Err(err).Msg("closing snapshot session")
		}
	}()

	return snapshotSession(sess, m.probe)
}

// Run opens a registry session, registers the notification callbacks and
// blocks in the session's event loop until Stop is called. Events are
// delivered to the channel in callback order; events emitted for a single
// notification are never reordered relative to each other. Send failures
// after Stop are swallowed — the native callback has no error path.
//
// Description-changed notifications are forwarded as Add events, so a
// consumer must treat a repeated Add for a known ID as an upsert.
func (m *Monitor) Run(events chan<- storage.Event) error {
	sess, err := m.open()
	if err != nil {
		return fmt.Errorf("open disk session: %w", err)
	}

	// The callback context is allocated once, handed to every
	// registration, and released exactly once after the loop returns.
	ctx := newCallbackContext(sess, events, m.probe)

	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		_ = sess.Close()
		return ErrAlreadyRunning
	}
	m.session = sess
	m.ctx = ctx
	m.mu.Unlock()

	sess.RegisterAppeared(ctx.diskAppeared)
	sess.RegisterChanged(ctx.diskChanged)
	sess.RegisterDisappeared(ctx.diskDisappeared)
	sess.RegisterRefresh(ctx.refreshNeeded)

	log.Info().Msg("storage monitor started")

	runErr := sess.Run()

	// Loop has returned: no callback can run anymore. Unschedule the
	// session first, then release the shared context.
	if err := sess.Close(); err != nil {
		log.Debug().Err(err).Msg("closing monitor session")
	}
	ctx.release()

	m.mu.Lock()
	m.session = nil
	m.ctx = nil
	m.mu.Unlock()

	log.Info().Msg("storage monitor stopped")

	if runErr != nil {
		return fmt.Errorf("event loop: %w", runErr)
	}
	return nil
}

// Stop ends a Run in progress from another goroutine. It unblocks any
// pending event send and stops the session's event loop. Safe to call
// when the monitor is not running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	sess := m.session
	ctx := m.ctx
	m.mu.Unlock()

	if ctx != nil {
		ctx.release()
	}
	if sess != nil {
		sess.Stop()
	}
}
