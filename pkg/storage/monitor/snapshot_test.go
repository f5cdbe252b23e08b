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
	"errors"
	"sync"
	"testing"

	"github.com/storagewatch/storagewatch/pkg/storage"
	"github.com/storagewatch/storagewatch/pkg/storage/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession is an in-memory registry.Session. Disk handles map to
// records; registered callbacks are stored for the test to fire.
type fakeSession struct {
	disks    []registry.Disk
	records  map[registry.Disk]registry.Record
	disksErr error

	appeared    func(registry.Disk)
	disappeared func(registry.Disk)
	changed     func(registry.Disk)
	refresh     func()

	runStarted chan struct{}
	stopCh     chan struct{}
	stopOnce   sync.Once
	closed     bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		records:    make(map[registry.Disk]registry.Record),
		runStarted: make(chan struct{}),
		stopCh:     make(chan struct{}),
	}
}

func (f *fakeSession) add(d registry.Disk, rec registry.Record) {
	f.disks = append(f.disks, d)
	f.records[d] = rec
}

func (f *fakeSession) Disks() ([]registry.Disk, error) {
	if f.disksErr != nil {
		return nil, f.disksErr
	}
	return f.disks, nil
}

func (f *fakeSession) Describe(d registry.Disk) (registry.Record, bool) {
	rec, ok := f.records[d]
	return rec, ok
}

func (f *fakeSession) RegisterAppeared(fn func(registry.Disk))    { f.appeared = fn }
func (f *fakeSession) RegisterDisappeared(fn func(registry.Disk)) { f.disappeared = fn }
func (f *fakeSession) RegisterChanged(fn func(registry.Disk))     { f.changed = fn }
func (f *fakeSession) RegisterRefresh(fn func())                  { f.refresh = fn }

func (f *fakeSession) Run() error {
	close(f.runStarted)
	<-f.stopCh
	return nil
}

func (f *fakeSession) Stop() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
	})
}

func (f *fakeSession) Close() error {
	f.Stop()
	f.closed = true
	return nil
}

func noProbe(_ string) (uint64, bool) { return 0, false }

func TestSnapshotMergesVolumesByDevice(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	sess.add("/Volumes/CARD", registry.Record{
		registry.KeyDevicePath: "/dev/disk3",
		registry.KeyMediaName:  "Card Reader",
		registry.KeyVolumeUUID: "AAAA-1111",
		registry.KeyVolumeName: "CARD",
	})
	sess.add("/Volumes/BACKUP", registry.Record{
		registry.KeyDevicePath: "/dev/disk3",
		registry.KeyVolumeUUID: "BBBB-2222",
		registry.KeyVolumeName: "BACKUP",
	})

	devices, volumes, err := snapshotSession(sess, noProbe)
	require.NoError(t, err)

	require.Len(t, devices, 1)
	dev := devices[0]
	assert.Equal(t, storage.DeviceID("/dev/disk3"), dev.ID)
	assert.Equal(t, "Card Reader", dev.DisplayName, "first observation supplies scalar fields")
	assert.Equal(t, 2, dev.Volumes.Len())
	assert.True(t, dev.Volumes.Contains("AAAA-1111"))
	assert.True(t, dev.Volumes.Contains("BBBB-2222"))

	require.Len(t, volumes, 2)
	for _, vol := range volumes {
		assert.True(t, dev.Volumes.Contains(vol.ID),
			"every reported volume ID is in its device's set")
		assert.True(t, vol.DeviceID.Equal(dev.ID))
	}
}

func TestSnapshotRecordWithoutDeviceID(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	sess.add("/mnt/nfs", registry.Record{
		registry.KeyVolumeUUID: "CCCC-3333",
		registry.KeyVolumeName: "nfs",
	})

	devices, volumes, err := snapshotSession(sess, noProbe)
	require.NoError(t, err)

	assert.Empty(t, devices)
	require.Len(t, volumes, 1)
	assert.Equal(t, storage.VolumeID("CCCC-3333"), volumes[0].ID)
}

func TestSnapshotSkipsVanishedDisk(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	sess.add("/Volumes/CARD", registry.Record{
		registry.KeyDevicePath: "/dev/disk2",
		registry.KeyVolumeUUID: "AAAA-1111",
	})
	// Listed but no longer describable.
	sess.disks = append(sess.disks, "/Volumes/GONE")

	devices, volumes, err := snapshotSession(sess, noProbe)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
	assert.Len(t, volumes, 1)
}

func TestSnapshotDeviceIDCaseInsensitiveMerge(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	sess.add("/Volumes/A", registry.Record{
		registry.KeyDevicePath: "/dev/DISK4",
		registry.KeyVolumeUUID: "AAAA-1111",
	})
	sess.add("/Volumes/B", registry.Record{
		registry.KeyDevicePath: "/dev/disk4",
		registry.KeyVolumeUUID: "BBBB-2222",
	})

	devices, _, err := snapshotSession(sess, noProbe)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, 2, devices[0].Volumes.Len())
}

func TestSnapshotOrderedAndRepeatable(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	sess.add("/Volumes/B", registry.Record{
		registry.KeyDevicePath: "/dev/diskB",
		registry.KeyVolumeUUID: "BBBB-2222",
	})
	sess.add("/Volumes/A", registry.Record{
		registry.KeyDevicePath: "/dev/diskA",
		registry.KeyVolumeUUID: "AAAA-1111",
	})

	first, firstVols, err := snapshotSession(sess, noProbe)
	require.NoError(t, err)
	second, secondVols, err := snapshotSession(sess, noProbe)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstVols, secondVols)

	require.Len(t, first, 2)
	assert.Equal(t, storage.DeviceID("/dev/diskA"), first[0].ID)
	assert.Equal(t, storage.DeviceID("/dev/diskB"), first[1].ID)
}

func TestSnapshotSDCardEndToEnd(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	sess.add("/Volumes/CARD", sdCardRecord())

	devices, volumes, err := snapshotSession(sess, noProbe)
	require.NoError(t, err)

	require.Len(t, devices, 1)
	dev := devices[0]
	assert.Equal(t, storage.DeviceID("/dev/disk2"), dev.ID)
	assert.Equal(t, storage.KindSDCard, dev.Kind)
	require.NotNil(t, dev.Internal)
	assert.False(t, *dev.Internal)
	assert.True(t, dev.Volumes.Contains("ABCD-1234"))

	require.Len(t, volumes, 1)
	vol := volumes[0]
	assert.True(t, vol.ID.Equal("abcd-1234"))
	assert.True(t, vol.DeviceID.Equal(dev.ID))
	assert.Equal(t, []string{"/Volumes/CARD"}, vol.Mounts)
}

func TestSnapshotDisksError(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	sess.disksErr = errors.New("bus gone")

	_, _, err := snapshotSession(sess, noProbe)
	require.Error(t, err)
	assert.ErrorContains(t, err, "bus gone")
}
