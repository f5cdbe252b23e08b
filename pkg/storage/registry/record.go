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

package registry

// Keys of a disk description record. Backends populate whatever subset
// the platform can supply; consumers treat every key as optional.
const (
	// KeyDevicePath is the path of the device hosting the volume, e.g.
	// "/dev/disk2". Device identity derives from this key.
	KeyDevicePath = "device-path"

	// KeyDeviceModel is the hardware model string, e.g. "SD/MMC".
	KeyDeviceModel = "device-model"

	// KeyDeviceInternal reports whether the device sits inside the host.
	KeyDeviceInternal = "device-internal"

	// KeyMediaName is the display name of the media.
	KeyMediaName = "media-name"

	// KeyMediaRemovable reports removable media.
	KeyMediaRemovable = "media-removable"

	// KeyMediaEjectable reports ejectable media.
	KeyMediaEjectable = "media-ejectable"

	// KeyMediaSize is the media size in bytes.
	KeyMediaSize = "media-size"

	// KeyMediaUUID is the stable hardware identifier of the media.
	KeyMediaUUID = "media-uuid"

	// KeyMediaWritable reports writable media.
	KeyMediaWritable = "media-writable"

	// KeyMediaBSDName is the node name of the partition, e.g. "disk2s1".
	KeyMediaBSDName = "media-bsd-name"

	// KeyVolumeName is the user-facing volume label.
	KeyVolumeName = "volume-name"

	// KeyVolumePath is the mount path of the volume, empty or absent
	// for unmounted volumes.
	KeyVolumePath = "volume-path"

	// KeyVolumeUUID is the volume identifier.
	KeyVolumeUUID = "volume-uuid"

	// KeyVolumeSystem hints that the volume is system-owned.
	KeyVolumeSystem = "volume-system"
)

// Record is one disk description record: a dictionary of loosely typed
// values read from the platform. The typed accessors below are the only
// coercion site; a missing key and a wrong-typed value are both reported
// as absent.
type Record map[string]any

// String returns the string value for key.
func (r Record) String(key string) (string, bool) {
	v, ok := r[key].(string)
	return v, ok
}

// Bool returns the boolean value for key.
func (r Record) Bool(key string) (bool, bool) {
	v, ok := r[key].(bool)
	return v, ok
}

// Uint64 returns the unsigned integer value for key. Signed values are
// accepted; negative ones are reported as absent.
func (r Record) Uint64(key string) (uint64, bool) {
	switch v := r[key].(type) {
	case uint64:
		return v, true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}
