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

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// partitionTable is a swappable fake for the platform partition list.
type partitionTable struct {
	mu    sync.Mutex
	parts []disk.PartitionStat
}

func (pt *partitionTable) set(parts []disk.PartitionStat) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.parts = parts
}

func (pt *partitionTable) list(_ bool) ([]disk.PartitionStat, error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	out := make([]disk.PartitionStat, len(pt.parts))
	copy(out, pt.parts)
	return out, nil
}

func sdCardPartition() disk.PartitionStat {
	return disk.PartitionStat{
		Device:     "/dev/sdb1",
		Mountpoint: "/media/CARD",
		Fstype:     "vfat",
		Opts:       []string{"rw"},
	}
}

func rootPartition() disk.PartitionStat {
	return disk.PartitionStat{
		Device:     "/dev/sda2",
		Mountpoint: "/",
		Fstype:     "ext4",
		Opts:       []string{"rw"},
	}
}

func newTestPollSession(pt *partitionTable, clock clockwork.Clock) *pollSession {
	s := newPollSession(Options{PollInterval: time.Second}, clock)
	s.partitions = pt.list
	s.usage = func(_ string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Total: 32_000_000_000, Free: 16_000_000_000}, nil
	}
	return s
}

func TestPollSessionDisksAndDescribe(t *testing.T) {
	t.Parallel()

	pt := &partitionTable{}
	pt.set([]disk.PartitionStat{rootPartition(), sdCardPartition()})
	s := newTestPollSession(pt, clockwork.NewFakeClock())

	disks, err := s.Disks()
	require.NoError(t, err)
	assert.Len(t, disks, 2)

	rec, ok := s.Describe(Disk("/media/CARD"))
	require.True(t, ok)

	devPath, ok := rec.String(KeyDevicePath)
	assert.True(t, ok)
	assert.Equal(t, "/dev/sdb", devPath)

	name, ok := rec.String(KeyVolumeName)
	assert.True(t, ok)
	assert.Equal(t, "CARD", name)

	partition, ok := rec.String(KeyMediaBSDName)
	assert.True(t, ok)
	assert.Equal(t, "sdb1", partition)

	writable, ok := rec.Bool(KeyMediaWritable)
	assert.True(t, ok)
	assert.True(t, writable)

	size, ok := rec.Uint64(KeyMediaSize)
	assert.True(t, ok)
	assert.Equal(t, uint64(32_000_000_000), size)

	_, ok = s.Describe(Disk("/media/GONE"))
	assert.False(t, ok)
}

func TestPollSessionSkipsVirtualAndNetworkMounts(t *testing.T) {
	t.Parallel()

	pt := &partitionTable{}
	pt.set([]disk.PartitionStat{
		rootPartition(),
		{Device: "tmpfs", Mountpoint: "/run", Fstype: "tmpfs"},
		{Device: "proc", Mountpoint: "/proc", Fstype: "proc"},
		{Device: "/some/image.img", Mountpoint: "/mnt/img", Fstype: "ext4"},
	})
	s := newTestPollSession(pt, clockwork.NewFakeClock())

	disks, err := s.Disks()
	require.NoError(t, err)
	assert.Equal(t, []Disk{"/"}, disks)
}

func TestPollSessionIgnoredFilesystems(t *testing.T) {
	t.Parallel()

	pt := &partitionTable{}
	pt.set([]disk.PartitionStat{rootPartition(), sdCardPartition()})
	s := newPollSession(Options{
		PollInterval:      time.Second,
		IgnoreFilesystems: []string{"vfat"},
	}, clockwork.NewFakeClock())
	s.partitions = pt.list
	s.usage = func(_ string) (*disk.UsageStat, error) { return nil, nil }

	disks, err := s.Disks()
	require.NoError(t, err)
	assert.Equal(t, []Disk{"/"}, disks)
}

func TestPollSessionRunEmitsAppearedAndRefresh(t *testing.T) {
	t.Parallel()

	pt := &partitionTable{}
	pt.set([]disk.PartitionStat{rootPartition()})

	clock := clockwork.NewFakeClock()
	s := newTestPollSession(pt, clock)

	appeared := make(chan Disk, 4)
	refreshed := make(chan struct{}, 4)
	s.RegisterAppeared(func(d Disk) { appeared <- d })
	s.RegisterRefresh(func() { refreshed <- struct{}{} })

	done := make(chan error, 1)
	go func() {
		done <- s.Run()
	}()

	// Wait for the loop to reach its ticker before advancing time.
	clock.BlockUntil(1)

	// A mount present at start is part of the baseline, never an event.
	pt.set([]disk.PartitionStat{rootPartition(), sdCardPartition()})
	clock.Advance(time.Second)

	select {
	case d := <-appeared:
		assert.Equal(t, Disk("/media/CARD"), d)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for appeared callback")
	}

	// The appeared disk is describable from inside the callback window.
	_, ok := s.Describe(Disk("/media/CARD"))
	assert.True(t, ok)

	// A vanished mount cannot be attributed, so it surfaces as refresh.
	pt.set([]disk.PartitionStat{rootPartition()})
	clock.Advance(time.Second)

	select {
	case <-refreshed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for refresh callback")
	}

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to return")
	}

	assert.Empty(t, appeared, "baseline mounts must not fire appeared")
}

func TestPollSessionChangedOnRecordDiff(t *testing.T) {
	t.Parallel()

	pt := &partitionTable{}
	card := sdCardPartition()
	pt.set([]disk.PartitionStat{card})

	clock := clockwork.NewFakeClock()
	s := newTestPollSession(pt, clock)

	changed := make(chan Disk, 4)
	s.RegisterChanged(func(d Disk) { changed <- d })

	done := make(chan error, 1)
	go func() {
		done <- s.Run()
	}()
	clock.BlockUntil(1)

	// Remount read-only: same mountpoint, different record.
	card.Opts = []string{"ro"}
	pt.set([]disk.PartitionStat{card})
	clock.Advance(time.Second)

	select {
	case d := <-changed:
		assert.Equal(t, Disk("/media/CARD"), d)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for changed callback")
	}

	s.Stop()
	<-done
}

func TestPollSessionCloseStopsRun(t *testing.T) {
	t.Parallel()

	pt := &partitionTable{}
	s := newTestPollSession(pt, clockwork.NewFakeClock())

	done := make(chan error, 1)
	go func() {
		done <- s.Run()
	}()

	require.NoError(t, s.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to return")
	}

	// Stop and Close are idempotent.
	s.Stop()
	assert.NoError(t, s.Close())
}
