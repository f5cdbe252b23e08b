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

package monitor

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/storagewatch/storagewatch/pkg/storage"
	"github.com/storagewatch/storagewatch/pkg/storage/registry"
)

// callbackContext is the state shared between the event loop and the
// registered callbacks. Its access pattern is write-once before the loop
// starts, read-only while the loop runs, released exactly once after the
// loop returns. One Run invocation owns exactly one context, so no lock
// guards the fields; only release needs a sync.Once.
type callbackContext struct {
	sess   registry.Session
	events chan<- storage.Event
	probe  FreeSpaceFunc

	released    chan struct{}
	releaseOnce sync.Once
}

func newCallbackContext(sess registry.Session, events chan<- storage.Event, probe FreeSpaceFunc) *callbackContext {
	return &callbackContext{
		sess:     sess,
		events:   events,
		probe:    probe,
		released: make(chan struct{}),
	}
}

// release marks the context dead. Subsequent and pending sends drop
// their events. Idempotent.
func (c *callbackContext) release() {
	c.releaseOnce.Do(func() {
		close(c.released)
	})
}

// send delivers one event to the consumer. Delivery is best-effort: once
// the context is released the event is dropped silently, since the
// callback that produced it has no way to report failure upward.
func (c *callbackContext) send(ev storage.Event) {
	select {
	case <-c.released:
	case c.events <- ev:
	}
}

// diskAppeared handles a disk arrival: translate the description record
// and emit the device before its volume.
func (c *callbackContext) diskAppeared(d registry.Disk) {
	rec, ok := c.sess.Describe(d)
	if !ok {
		log.Trace().Str("disk", string(d)).Msg("appeared disk has no description")
		return
	}

	dev, vol := translateRecord(rec, c.probe)
	c.send(storage.DeviceAdded{Device: dev})
	c.send(storage.VolumeAdded{Volume: vol})
}

// diskChanged handles a description change. It emits the same Add pair
// as an arrival; consumers upsert on Add.
func (c *callbackContext) diskChanged(d registry.Disk) {
	c.diskAppeared(d)
}

// diskDisappeared handles a disk departure. Identifiers are extracted
// from whatever the possibly torn-down record still offers before
// anything is emitted. The volume removal always precedes the device
// removal, so a consumer never observes a device-less orphan volume
// reference.
func (c *callbackContext) diskDisappeared(d registry.Disk) {
	rec, ok := c.sess.Describe(d)
	if !ok {
		log.Trace().Str("disk", string(d)).Msg("disappeared disk has no description")
		return
	}

	// No free-space probe here: the mount is already gone.
	dev, vol := translateRecord(rec, nil)

	if vol.ID != "" {
		c.send(storage.VolumeRemoved{ID: vol.ID})
	}
	if dev.ID != "" {
		c.send(storage.DeviceRemoved{ID: dev.ID})
	}
}

// refreshNeeded forwards the backend's "cannot attribute this change"
// signal; the consumer re-enumerates and diffs.
func (c *callbackContext) refreshNeeded() {
	c.send(storage.Refresh{})
}
