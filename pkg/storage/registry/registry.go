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

// Package registry is the boundary to the platform's disk registry. A
// Session enumerates attached disks, resolves their description records
// and delivers arrival/departure/change notifications on a dedicated
// event loop. Backends exist for macOS (fsstat + /Volumes watching),
// Linux (D-Bus/UDisks2) and a portable polling fallback used on Windows.
package registry

import (
	"errors"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
)

// ErrSessionUnavailable reports that a session with the platform disk
// registry could not be opened. It is the only hard failure at this
// boundary; everything else degrades to partial information.
var ErrSessionUnavailable = errors.New("disk registry session unavailable")

// Disk is an opaque handle to one attached disk, valid for the duration
// of a single enumeration pass or notification.
type Disk string

// Session is one connection to the platform disk registry.
//
// The Register methods must all be called before Run; callbacks are
// invoked only on the goroutine running the event loop and must not
// assume reentrancy. Run blocks until Stop is called from another
// goroutine. Close releases the session after Run has returned.
type Session interface {
	// Disks enumerates every currently mounted filesystem as a disk
	// handle. The result is a single pass; re-enumerate for fresh state.
	Disks() ([]Disk, error)

	// Describe resolves the description record for a disk. The second
	// return is false when the disk vanished between enumeration and
	// the description read; callers must skip it, not fail.
	Describe(d Disk) (Record, bool)

	// RegisterAppeared sets the callback for disk arrivals.
	RegisterAppeared(fn func(Disk))

	// RegisterDisappeared sets the callback for disk departures. The
	// departed disk remains describable from cached state until the
	// callback returns.
	RegisterDisappeared(fn func(Disk))

	// RegisterChanged sets the callback for description changes on
	// watched volume paths.
	RegisterChanged(fn func(Disk))

	// RegisterRefresh sets the callback fired when the backend detects
	// a change it cannot attribute to a specific disk.
	RegisterRefresh(fn func())

	// Run enters the event loop, blocking the calling goroutine until
	// Stop is called.
	Run() error

	// Stop ends the event loop. Safe to call more than once and from
	// any goroutine.
	Stop()

	// Close releases the session. Call only after Run has returned.
	Close() error
}

// Options tunes backend behavior. The zero value is usable; withDefaults
// fills unset fields.
type Options struct {
	// Debounce delays volume checks after a filesystem notification so
	// rapid event bursts coalesce into one check.
	Debounce time.Duration

	// PollInterval is the rescan period of the polling backend.
	PollInterval time.Duration

	// IncludeSystemVolumes enumerates volumes the platform hints as
	// system-owned instead of skipping them.
	IncludeSystemVolumes bool

	// IgnoreFilesystems lists filesystem type names to skip during
	// enumeration, in addition to the built-in virtual filesystems.
	IgnoreFilesystems []string
}

const (
	defaultDebounce     = 100 * time.Millisecond
	defaultPollInterval = time.Second
)

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = defaultDebounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	return o
}

func (o Options) ignored(fstype string) bool {
	for _, t := range o.IgnoreFilesystems {
		if t == fstype {
			return true
		}
	}
	return false
}

// FreeSpace probes the filesystem mounted at path and returns its free
// bytes. The second return is false on any OS-level failure; absence must
// stay distinguishable from a legitimate zero.
func FreeSpace(mount string) (uint64, bool) {
	usage, err := disk.Usage(mount)
	if err != nil || usage == nil {
		return 0, false
	}
	return usage.Free, true
}
