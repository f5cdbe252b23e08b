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
	"fmt"
	"path"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/storagewatch/storagewatch/pkg/helpers/syncutil"
)

// virtualFSTypes are pseudo-filesystems that never represent storage
// media and are always skipped during enumeration.
var virtualFSTypes = map[string]struct{}{
	"sysfs": {}, "proc": {}, "devtmpfs": {}, "devpts": {}, "tmpfs": {},
	"cgroup": {}, "cgroup2": {}, "pstore": {}, "bpf": {}, "configfs": {},
	"selinuxfs": {}, "debugfs": {}, "tracefs": {}, "fusectl": {},
	"fuse.portal": {}, "mqueue": {}, "hugetlbfs": {}, "autofs": {},
	"efivarfs": {}, "binfmt_misc": {}, "overlay": {}, "squashfs": {},
	"ramfs": {}, "devfs": {},
}

// pollSession is a Session backend that rescans the mounted partition
// table on a fixed interval and diffs against the previous scan. New
// mounts fire the appeared callback; vanished mounts cannot be attributed
// to a device, so they fire the refresh callback and the consumer
// re-enumerates. Used on Windows and as a fallback where no native
// notification service is reachable.
type pollSession struct {
	opts  Options
	clock clockwork.Clock

	// injectable for tests
	partitions func(all bool) ([]disk.PartitionStat, error)
	usage      func(p string) (*disk.UsageStat, error)

	appeared    func(Disk)
	disappeared func(Disk)
	changed     func(Disk)
	refresh     func()

	mu      syncutil.RWMutex
	records map[Disk]Record

	stopCh   chan struct{}
	stopOnce sync.Once
}

func newPollSession(opts Options, clock clockwork.Clock) *pollSession {
	return &pollSession{
		opts:       opts.withDefaults(),
		clock:      clock,
		partitions: disk.Partitions,
		usage:      disk.Usage,
		records:    make(map[Disk]Record),
		stopCh:     make(chan struct{}),
	}
}

func (s *pollSession) Disks() ([]Disk, error) {
	current, err := s.scan()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.records = current
	s.mu.Unlock()

	disks := make([]Disk, 0, len(current))
	for d := range current {
		disks = append(disks, d)
	}
	return disks, nil
}

func (s *pollSession) Describe(d Disk) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[d]
	return rec, ok
}

func (s *pollSession) RegisterAppeared(fn func(Disk))    { s.appeared = fn }
func (s *pollSession) RegisterDisappeared(fn func(Disk)) { s.disappeared = fn }
func (s *pollSession) RegisterChanged(fn func(Disk))     { s.changed = fn }
func (s *pollSession) RegisterRefresh(fn func())         { s.refresh = fn }

func (s *pollSession) Run() error {
	// Prime the cache so the first tick diffs against the state at the
	// time monitoring started, not an empty table.
	if current, err := s.scan(); err == nil {
		s.mu.Lock()
		s.records = current
		s.mu.Unlock()
	} else {
		log.Warn().Err(err).Msg("initial partition scan failed")
	}

	ticker := s.clock.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return nil
		case <-ticker.Chan():
			s.rescan()
		}
	}
}

func (s *pollSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *pollSession) Close() error {
	s.Stop()
	return nil
}

func (s *pollSession) rescan() {
	current, err := s.scan()
	if err != nil {
		log.Warn().Err(err).Msg("partition rescan failed")
		return
	}

	s.mu.RLock()
	previous := s.records
	s.mu.RUnlock()

	var added, updated []Disk
	removed := 0
	for d, rec := range current {
		old, ok := previous[d]
		switch {
		case !ok:
			added = append(added, d)
		case !reflect.DeepEqual(old, rec):
			updated = append(updated, d)
		}
	}
	for d := range previous {
		if _, ok := current[d]; !ok {
			removed++
			log.Debug().Str("mount", string(d)).Msg("mount vanished")
		}
	}

	s.mu.Lock()
	s.records = current
	s.mu.Unlock()

	for _, d := range added {
		log.Debug().Str("mount", string(d)).Msg("mount appeared")
		if s.appeared != nil {
			s.appeared(d)
		}
	}
	for _, d := range updated {
		if s.changed != nil {
			s.changed(d)
		}
	}
	// Departed mounts cannot be attributed to a device from the
	// partition table alone; hand the diffing to the consumer.
	if removed > 0 && s.refresh != nil {
		s.refresh()
	}
}

func (s *pollSession) scan() (map[Disk]Record, error) {
	parts, err := s.partitions(false)
	if err != nil {
		return nil, fmt.Errorf("enumerate partitions: %w", err)
	}

	current := make(map[Disk]Record, len(parts))
	for i := range parts {
		p := &parts[i]
		if _, ok := virtualFSTypes[p.Fstype]; ok {
			continue
		}
		if s.opts.ignored(p.Fstype) {
			continue
		}
		// Unix block devices live under /dev; anything else path-like
		// is a network or virtual mount. Windows device names ("C:")
		// pass through.
		if strings.HasPrefix(p.Device, "/") && !strings.HasPrefix(p.Device, "/dev/") {
			continue
		}
		current[Disk(p.Mountpoint)] = s.recordFromPartition(p)
	}
	return current, nil
}

func (s *pollSession) recordFromPartition(p *disk.PartitionStat) Record {
	rec := Record{
		KeyVolumePath: p.Mountpoint,
	}

	if name := filepath.Base(p.Mountpoint); name != "" && name != "/" && name != "\\" && name != "." {
		rec[KeyVolumeName] = name
	} else {
		rec[KeyVolumeName] = p.Mountpoint
	}

	if p.Device != "" {
		rec[KeyDevicePath] = devicePathFromNode(p.Device)
		if strings.HasPrefix(p.Device, "/dev/") {
			rec[KeyMediaBSDName] = path.Base(p.Device)
		} else {
			rec[KeyMediaBSDName] = p.Device
		}
	}

	for _, opt := range p.Opts {
		switch opt {
		case "ro":
			rec[KeyMediaWritable] = false
		case "rw":
			rec[KeyMediaWritable] = true
		}
	}

	if usage, err := s.usage(p.Mountpoint); err == nil && usage != nil {
		rec[KeyMediaSize] = usage.Total
	}

	return rec
}
