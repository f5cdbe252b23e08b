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

//go:build darwin

package registry

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/storagewatch/storagewatch/pkg/helpers/syncutil"
	"golang.org/x/sys/unix"
)

const volumesPath = "/Volumes"

// darwinSession reads the mounted filesystem table with getfsstat and
// watches /Volumes for arrivals and departures. Records for departed
// volumes stay cached until the disappeared callback has run, so their
// identifiers remain readable after the mount is gone.
type darwinSession struct {
	opts    Options
	watcher *fsnotify.Watcher

	appeared    func(Disk)
	disappeared func(Disk)
	changed     func(Disk)
	refresh     func()

	mu      syncutil.RWMutex
	records map[Disk]Record
	byMount map[string]Disk

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Open connects to the host's mounted filesystem table and volume
// notifications.
func Open(opts Options) (Session, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	if err := watcher.Add(volumesPath); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("%w: watch %s: %v", ErrSessionUnavailable, volumesPath, err)
	}

	return &darwinSession{
		opts:    opts.withDefaults(),
		watcher: watcher,
		records: make(map[Disk]Record),
		byMount: make(map[string]Disk),
		stopCh:  make(chan struct{}),
	}, nil
}

func (s *darwinSession) Disks() ([]Disk, error) {
	n, err := unix.Getfsstat(nil, unix.MNT_NOWAIT)
	if err != nil {
		return nil, fmt.Errorf("getfsstat: %w", err)
	}
	buf := make([]unix.Statfs_t, n)
	n, err = unix.Getfsstat(buf, unix.MNT_NOWAIT)
	if err != nil {
		return nil, fmt.Errorf("getfsstat: %w", err)
	}

	disks := make([]Disk, 0, n)
	s.mu.Lock()
	for i := range buf[:n] {
		st := &buf[i]
		d, rec, ok := s.recordFromStatfs(st)
		if !ok {
			continue
		}
		s.records[d] = rec
		s.byMount[cstr(st.Mntonname[:])] = d
		disks = append(disks, d)
	}
	s.mu.Unlock()

	return disks, nil
}

func (s *darwinSession) Describe(d Disk) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[d]
	return rec, ok
}

func (s *darwinSession) RegisterAppeared(fn func(Disk))    { s.appeared = fn }
func (s *darwinSession) RegisterDisappeared(fn func(Disk)) { s.disappeared = fn }
func (s *darwinSession) RegisterChanged(fn func(Disk))     { s.changed = fn }
func (s *darwinSession) RegisterRefresh(fn func())         { s.refresh = fn }

func (s *darwinSession) Run() error {
	// Seed the mount index so departures of volumes mounted before Run
	// still resolve to a cached record.
	if _, err := s.Disks(); err != nil {
		log.Warn().Err(err).Msg("initial filesystem enumeration failed")
	}

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := make(map[string]struct{})

	for {
		select {
		case <-s.stopCh:
			debounce.Stop()
			return nil

		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			// Only direct children of /Volumes are mounts.
			if filepath.Dir(event.Name) != volumesPath {
				continue
			}
			pending[event.Name] = struct{}{}
			debounce.Reset(s.opts.Debounce)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("volume watcher error")

		case <-debounce.C:
			for mount := range pending {
				s.checkMount(mount)
			}
			pending = make(map[string]struct{})
		}
	}
}

func (s *darwinSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *darwinSession) Close() error {
	if err := s.watcher.Close(); err != nil {
		return fmt.Errorf("close volume watcher: %w", err)
	}
	return nil
}

// checkMount resolves the state of one /Volumes entry after a debounced
// notification and dispatches the matching callback.
func (s *darwinSession) checkMount(mount string) {
	var st unix.Statfs_t
	if err := unix.Statfs(mount, &st); err != nil {
		s.handleUnmount(mount)
		return
	}

	d, rec, ok := s.recordFromStatfs(&st)
	if !ok {
		return
	}

	s.mu.Lock()
	_, known := s.records[d]
	s.records[d] = rec
	s.byMount[mount] = d
	s.mu.Unlock()

	if known {
		log.Debug().Str("mount", mount).Msg("volume description changed")
		if s.changed != nil {
			s.changed(d)
		}
		return
	}

	log.Debug().Str("mount", mount).Str("disk", string(d)).Msg("volume mount detected")
	if s.appeared != nil {
		s.appeared(d)
	}
}

func (s *darwinSession) handleUnmount(mount string) {
	s.mu.Lock()
	d, ok := s.byMount[mount]
	s.mu.Unlock()
	if !ok {
		return
	}

	log.Debug().Str("mount", mount).Str("disk", string(d)).Msg("volume unmount detected")

	// The cached record must stay readable while the callback extracts
	// identifiers from it; evict only afterwards.
	if s.disappeared != nil {
		s.disappeared(d)
	}

	s.mu.Lock()
	delete(s.records, d)
	delete(s.byMount, mount)
	s.mu.Unlock()
}

// recordFromStatfs builds a description record from one statfs entry.
// Entries not backed by a /dev node are skipped.
func (s *darwinSession) recordFromStatfs(st *unix.Statfs_t) (Disk, Record, bool) {
	node := cstr(st.Mntfromname[:])
	if !strings.HasPrefix(node, "/dev/") {
		return "", nil, false
	}

	fstype := cstr(st.Fstypename[:])
	if s.opts.ignored(fstype) {
		return "", nil, false
	}

	mount := cstr(st.Mntonname[:])
	system := st.Flags&unix.MNT_DONTBROWSE != 0
	if system && !s.opts.IncludeSystemVolumes && mount != "/" {
		return "", nil, false
	}

	rec := Record{
		KeyDevicePath:    devicePathFromNode(node),
		KeyMediaBSDName:  path.Base(node),
		KeyVolumePath:    mount,
		KeyVolumeName:    volumeLabel(mount),
		KeyMediaSize:     st.Blocks * uint64(st.Bsize),
		KeyMediaWritable: st.Flags&unix.MNT_RDONLY == 0,
		KeyVolumeSystem:  system,
		// The fsid survives remounts of the same filesystem, which is
		// the closest statfs gets to a volume UUID.
		KeyVolumeUUID: fmt.Sprintf("%08x-%08x", uint32(st.Fsid.Val[0]), uint32(st.Fsid.Val[1])),
	}

	switch {
	case mount == "/" || system:
		rec[KeyDeviceInternal] = true
		rec[KeyMediaRemovable] = false
	case strings.HasPrefix(mount, volumesPath+"/") && isRemovableFS(fstype):
		rec[KeyDeviceInternal] = false
		rec[KeyMediaRemovable] = true
	}

	return Disk(node), rec, true
}

// isRemovableFS reports filesystem types typically carried by removable
// media.
func isRemovableFS(fstype string) bool {
	switch fstype {
	case "msdos", "exfat", "hfs", "apfs", "ntfs":
		return true
	default:
		return false
	}
}

func volumeLabel(mount string) string {
	if name := filepath.Base(mount); name != "" && name != "/" {
		return name
	}
	return mount
}

// cstr converts a NUL-terminated byte array field to a string.
func cstr(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
