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
	"testing"

	"github.com/storagewatch/storagewatch/pkg/storage"
	"github.com/storagewatch/storagewatch/pkg/storage/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sdCardRecord() registry.Record {
	return registry.Record{
		registry.KeyDevicePath:     "/dev/disk2",
		registry.KeyDeviceModel:    "SD/MMC",
		registry.KeyDeviceInternal: false,
		registry.KeyMediaName:      "APPLE SD Card Reader Media",
		registry.KeyMediaRemovable: true,
		registry.KeyMediaEjectable: true,
		registry.KeyMediaSize:      uint64(31_914_983_424),
		registry.KeyMediaUUID:      "3A4B5C6D",
		registry.KeyMediaWritable:  true,
		registry.KeyMediaBSDName:   "disk2s1",
		registry.KeyVolumeName:     "CARD",
		registry.KeyVolumePath:     "/Volumes/CARD",
		registry.KeyVolumeUUID:     "ABCD-1234",
		registry.KeyVolumeSystem:   false,
	}
}

func TestTranslateRecordFull(t *testing.T) {
	t.Parallel()

	probe := func(mount string) (uint64, bool) {
		assert.Equal(t, "/Volumes/CARD", mount)
		return 10_000_000_000, true
	}

	dev, vol := translateRecord(sdCardRecord(), probe)

	assert.Equal(t, storage.DeviceID("/dev/disk2"), dev.ID)
	assert.Equal(t, "APPLE SD Card Reader Media", dev.DisplayName)
	assert.Equal(t, "SD/MMC", dev.Model)
	assert.Equal(t, storage.KindSDCard, dev.Kind)
	assert.Equal(t, "3A4B5C6D", dev.Serial)
	require.NotNil(t, dev.Internal)
	assert.False(t, *dev.Internal)
	require.NotNil(t, dev.Removable)
	assert.True(t, *dev.Removable)
	require.NotNil(t, dev.Ejectable)
	assert.True(t, *dev.Ejectable)
	assert.Equal(t, 0, dev.Volumes.Len(), "translation never populates the volume set")

	assert.Equal(t, storage.VolumeID("ABCD-1234"), vol.ID)
	assert.Equal(t, "CARD", vol.DisplayName)
	assert.Equal(t, storage.DeviceID("/dev/disk2"), vol.DeviceID)
	assert.Equal(t, "/dev/disk2", vol.Path)
	assert.Equal(t, []string{"/Volumes/CARD"}, vol.Mounts)
	assert.Equal(t, "disk2s1", vol.PartitionID)
	require.NotNil(t, vol.Size)
	assert.Equal(t, uint64(31_914_983_424), *vol.Size)
	require.NotNil(t, vol.Free)
	assert.Equal(t, uint64(10_000_000_000), *vol.Free)
	require.NotNil(t, vol.IsSystem)
	assert.False(t, *vol.IsSystem)
	require.NotNil(t, vol.IsWritable)
	assert.True(t, *vol.IsWritable)

	assert.True(t, vol.DeviceID.Equal(dev.ID), "volume and device derive from the same path")
}

func TestTranslateRecordEmpty(t *testing.T) {
	t.Parallel()

	dev, vol := translateRecord(registry.Record{}, nil)

	assert.Equal(t, storage.DeviceID(""), dev.ID)
	assert.Equal(t, storage.KindOther, dev.Kind)
	assert.Nil(t, dev.Internal)
	assert.Nil(t, dev.Removable)
	assert.NotNil(t, dev.Volumes)

	assert.Equal(t, storage.VolumeID(""), vol.ID)
	assert.Empty(t, vol.Mounts)
	assert.Nil(t, vol.Size)
	assert.Nil(t, vol.Free)
}

func TestTranslateRecordNoMountSkipsProbe(t *testing.T) {
	t.Parallel()

	rec := sdCardRecord()
	delete(rec, registry.KeyVolumePath)

	probeCalled := false
	_, vol := translateRecord(rec, func(string) (uint64, bool) {
		probeCalled = true
		return 0, true
	})

	assert.False(t, probeCalled)
	assert.Nil(t, vol.Free)
	assert.Empty(t, vol.Mounts)
}

func TestTranslateRecordProbeFailure(t *testing.T) {
	t.Parallel()

	_, vol := translateRecord(sdCardRecord(), func(string) (uint64, bool) {
		return 0, false
	})
	assert.Nil(t, vol.Free)
}

func TestTranslateRecordNilProbe(t *testing.T) {
	t.Parallel()

	_, vol := translateRecord(sdCardRecord(), nil)
	assert.Nil(t, vol.Free)
	assert.Equal(t, []string{"/Volumes/CARD"}, vol.Mounts)
}

func TestTranslateRecordWrongTypesDegrade(t *testing.T) {
	t.Parallel()

	rec := registry.Record{
		registry.KeyDevicePath: "/dev/disk5",
		registry.KeyMediaSize:  "not a number",
		registry.KeyVolumeUUID: 42,
		registry.KeyMediaName:  true,
	}

	dev, vol := translateRecord(rec, nil)
	assert.Equal(t, storage.DeviceID("/dev/disk5"), dev.ID)
	assert.Empty(t, dev.DisplayName)
	assert.Equal(t, storage.VolumeID(""), vol.ID)
	assert.Nil(t, vol.Size)
}
