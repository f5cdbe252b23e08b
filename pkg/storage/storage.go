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

// Package storage defines the device and volume model shared by the
// snapshotter, the event bridge and their consumers. Values handed to
// consumers are immutable snapshots; nothing in this package performs I/O.
package storage

// Device represents one physical or virtual storage device. Pointer
// fields distinguish "not reported by the platform" from a legitimate
// zero value; empty strings mean the field was not reported.
type Device struct {
	// ID is the platform identifier for the device, empty when the
	// description record carried no device path.
	ID DeviceID `json:"id,omitempty"`

	DisplayName string `json:"displayName,omitempty"`

	Model string `json:"model,omitempty"`

	Kind DeviceKind `json:"kind"`

	// Internal reports whether the device sits inside the computer.
	Internal *bool `json:"internal,omitempty"`

	Removable *bool `json:"removable,omitempty"`

	Ejectable *bool `json:"ejectable,omitempty"`

	// Serial is the stable hardware identifier, when the platform
	// supplies one.
	Serial string `json:"serial,omitempty"`

	// Volumes holds the IDs of volumes that, at last observation,
	// reported this device as their owner. Populated only by the
	// reconciliation logic, never by record translation.
	Volumes VolumeIDSet `json:"volumes,omitempty"`
}

// Volume represents one mountable partition or filesystem.
type Volume struct {
	// ID is the platform identifier for the volume, empty when the
	// description record carried no volume UUID.
	ID VolumeID `json:"id,omitempty"`

	DisplayName string `json:"displayName,omitempty"`

	// DeviceID names the owning device, derived from the same device
	// path field as Device.ID so association needs no second lookup.
	DeviceID DeviceID `json:"deviceId,omitempty"`

	// Size of the volume in bytes.
	Size *uint64 `json:"size,omitempty"`

	// Free bytes from a live filesystem-statistics query of the first
	// mount path. Nil whenever the volume is unmounted or the query
	// failed; never a stale or placeholder zero.
	Free *uint64 `json:"free,omitempty"`

	// Path is the platform-specific path referencing the volume itself.
	Path string `json:"path,omitempty"`

	// Mounts lists the paths where the volume's files are reachable.
	// Empty for unmounted volumes.
	Mounts []string `json:"mounts,omitempty"`

	// PartitionID identifies the partition on the device.
	PartitionID string `json:"partitionId,omitempty"`

	// IsSystem is true for system partitions the user should not touch.
	IsSystem *bool `json:"isSystem,omitempty"`

	IsWritable *bool `json:"isWritable,omitempty"`
}
