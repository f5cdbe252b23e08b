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

package storage

// Event is one discrete change to the set of attached storage. Events are
// created by the monitor, consumed exactly once from the event channel and
// never mutated after creation.
//
// A repeated DeviceAdded or VolumeAdded for an already-known ID is an
// upsert: description-changed notifications are forwarded as Add events.
type Event interface {
	isEvent()
}

// DeviceAdded reports a device that appeared or whose description changed.
type DeviceAdded struct {
	Device Device
}

// DeviceUpdated reports a changed device description on platforms that
// distinguish updates from arrivals.
type DeviceUpdated struct {
	Device Device
}

// DeviceRemoved reports a departed device by ID.
type DeviceRemoved struct {
	ID DeviceID
}

// VolumeAdded reports a volume that appeared or whose description changed.
type VolumeAdded struct {
	Volume Volume
}

// VolumeUpdated reports a changed volume description on platforms that
// distinguish updates from arrivals.
type VolumeUpdated struct {
	Volume Volume
}

// VolumeRemoved reports a departed volume by ID. It is always delivered
// before the DeviceRemoved of the owning device.
type VolumeRemoved struct {
	ID VolumeID
}

// Refresh signals that the platform cannot attribute a removal to a
// specific device or volume. The consumer must re-enumerate with a
// snapshot and diff against its prior state.
type Refresh struct{}

func (DeviceAdded) isEvent()   {}
func (DeviceUpdated) isEvent() {}
func (DeviceRemoved) isEvent() {}
func (VolumeAdded) isEvent()   {}
func (VolumeUpdated) isEvent() {}
func (VolumeRemoved) isEvent() {}
func (Refresh) isEvent()       {}
