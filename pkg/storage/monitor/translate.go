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
	"github.com/storagewatch/storagewatch/pkg/storage"
	"github.com/storagewatch/storagewatch/pkg/storage/registry"
)

// FreeSpaceFunc probes the filesystem mounted at a path and returns its
// free bytes. The second return is false on failure.
type FreeSpaceFunc func(mount string) (uint64, bool)

// translateRecord maps one disk description record to a device and a
// volume. It never fails: every field is independently optional and a
// missing or malformed value degrades that field to its zero/default.
// Both the device ID and the volume's owning device ID derive from the
// same device-path key, so association needs no second lookup. The
// returned device always has an empty volume set; populating it is the
// caller's job. A nil probe skips the free-space query.
func translateRecord(rec registry.Record, probe FreeSpaceFunc) (storage.Device, storage.Volume) {
	devicePath, _ := rec.String(registry.KeyDevicePath)

	vol := storage.Volume{
		DeviceID: storage.DeviceID(devicePath),
		Path:     devicePath,
	}
	if uuid, ok := rec.String(registry.KeyVolumeUUID); ok {
		vol.ID = storage.VolumeID(uuid)
	}
	if name, ok := rec.String(registry.KeyVolumeName); ok {
		vol.DisplayName = name
	}
	if size, ok := rec.Uint64(registry.KeyMediaSize); ok {
		vol.Size = &size
	}
	if mount, ok := rec.String(registry.KeyVolumePath); ok && mount != "" {
		vol.Mounts = []string{mount}
	}
	if len(vol.Mounts) > 0 && probe != nil {
		if free, ok := probe(vol.Mounts[0]); ok {
			vol.Free = &free
		}
	}
	if partition, ok := rec.String(registry.KeyMediaBSDName); ok {
		vol.PartitionID = partition
	}
	if system, ok := rec.Bool(registry.KeyVolumeSystem); ok {
		vol.IsSystem = &system
	}
	if writable, ok := rec.Bool(registry.KeyMediaWritable); ok {
		vol.IsWritable = &writable
	}

	dev := storage.Device{
		ID:      storage.DeviceID(devicePath),
		Volumes: storage.NewVolumeIDSet(),
	}
	if name, ok := rec.String(registry.KeyMediaName); ok {
		dev.DisplayName = name
	}
	if serial, ok := rec.String(registry.KeyMediaUUID); ok {
		dev.Serial = serial
	}
	if internal, ok := rec.Bool(registry.KeyDeviceInternal); ok {
		dev.Internal = &internal
	}
	if removable, ok := rec.Bool(registry.KeyMediaRemovable); ok {
		dev.Removable = &removable
	}
	if ejectable, ok := rec.Bool(registry.KeyMediaEjectable); ok {
		dev.Ejectable = &ejectable
	}
	if model, ok := rec.String(registry.KeyDeviceModel); ok {
		dev.Model = model
	}
	dev.Kind = storage.ClassifyKind(dev.Model, dev.Internal)

	return dev, vol
}
