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

//go:build linux

package registry

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/storagewatch/storagewatch/pkg/helpers/syncutil"
)

const (
	udisks2Service        = "org.freedesktop.UDisks2"
	udisks2Path           = "/org/freedesktop/UDisks2"
	udisks2BlockInterface = "org.freedesktop.UDisks2.Block"
	udisks2FSInterface    = "org.freedesktop.UDisks2.Filesystem"
	udisks2DriveInterface = "org.freedesktop.UDisks2.Drive"
	dbusObjectManager     = "org.freedesktop.DBus.ObjectManager"
)

// Open connects to UDisks2 over the system D-Bus. When D-Bus or UDisks2
// is unreachable it falls back to the portable polling backend, so a
// session is always available on Linux.
func Open(opts Options) (Session, error) {
	if isUDisks2Available() {
		s, err := openDBusSession(opts)
		if err == nil {
			return s, nil
		}
		log.Debug().Err(err).Msg("UDisks2 session failed, falling back to mount polling")
	} else {
		log.Debug().Msg("UDisks2 unavailable, using mount polling")
	}
	return newPollSession(opts, clockwork.NewRealClock()), nil
}

// isUDisks2Available probes for a usable UDisks2 service with a private
// connection that is safe to tear down.
func isUDisks2Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, err := dbus.SystemBusPrivate()
	if err != nil {
		return false
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Auth(nil); err != nil {
		return false
	}
	if err := conn.Hello(); err != nil {
		return false
	}

	obj := conn.Object("org.freedesktop.DBus", "/org/freedesktop/DBus")
	var names []string
	if err := obj.CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return false
	}
	for _, name := range names {
		if name == udisks2Service {
			return true
		}
	}
	return false
}

// dbusSession is a Session backend driven by UDisks2 object-manager
// signals. Disk handles are UDisks2 block object paths.
type dbusSession struct {
	opts    Options
	conn    *dbus.Conn
	signals chan *dbus.Signal

	appeared    func(Disk)
	disappeared func(Disk)
	changed     func(Disk)
	refresh     func()

	mu      syncutil.RWMutex
	records map[Disk]Record

	stopCh   chan struct{}
	stopOnce sync.Once
}

func openDBusSession(opts Options) (*dbusSession, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("%w: connect system bus: %v", ErrSessionUnavailable, err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(udisks2Path),
		dbus.WithMatchInterface(dbusObjectManager),
		dbus.WithMatchMember("InterfacesAdded"),
	); err != nil {
		return nil, fmt.Errorf("%w: match InterfacesAdded: %v", ErrSessionUnavailable, err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(udisks2Path),
		dbus.WithMatchInterface(dbusObjectManager),
		dbus.WithMatchMember("InterfacesRemoved"),
	); err != nil {
		return nil, fmt.Errorf("%w: match InterfacesRemoved: %v", ErrSessionUnavailable, err)
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	return &dbusSession{
		opts:    opts.withDefaults(),
		conn:    conn,
		signals: signals,
		records: make(map[Disk]Record),
		stopCh:  make(chan struct{}),
	}, nil
}

func (s *dbusSession) Disks() ([]Disk, error) {
	obj := s.conn.Object(udisks2Service, udisks2Path)
	var managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := obj.Call(dbusObjectManager+".GetManagedObjects", 0).Store(&managed); err != nil {
		return nil, fmt.Errorf("enumerate UDisks2 objects: %w", err)
	}

	var disks []Disk
	s.mu.Lock()
	for objPath, ifaces := range managed {
		blockProps, ok := ifaces[udisks2BlockInterface]
		if !ok {
			continue
		}
		fsProps, ok := ifaces[udisks2FSInterface]
		if !ok {
			continue
		}
		rec, ok := s.recordFromBlock(blockProps, fsProps)
		if !ok {
			continue
		}
		d := Disk(objPath)
		s.records[d] = rec
		disks = append(disks, d)
	}
	s.mu.Unlock()

	return disks, nil
}

func (s *dbusSession) Describe(d Disk) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[d]
	return rec, ok
}

func (s *dbusSession) RegisterAppeared(fn func(Disk))    { s.appeared = fn }
func (s *dbusSession) RegisterDisappeared(fn func(Disk)) { s.disappeared = fn }
func (s *dbusSession) RegisterChanged(fn func(Disk))     { s.changed = fn }
func (s *dbusSession) RegisterRefresh(fn func())         { s.refresh = fn }

func (s *dbusSession) Run() error {
	// Seed the record cache so departures of pre-existing volumes can
	// still be described.
	if _, err := s.Disks(); err != nil {
		log.Warn().Err(err).Msg("initial UDisks2 enumeration failed")
	}

	for {
		select {
		case <-s.stopCh:
			return nil
		case signal := <-s.signals:
			if signal == nil {
				return nil
			}
			switch signal.Name {
			case dbusObjectManager + ".InterfacesAdded":
				s.handleInterfacesAdded(signal)
			case dbusObjectManager + ".InterfacesRemoved":
				s.handleInterfacesRemoved(signal)
			}
		}
	}
}

func (s *dbusSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *dbusSession) Close() error {
	s.conn.RemoveSignal(s.signals)
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close system bus connection: %w", err)
	}
	return nil
}

func (s *dbusSession) handleInterfacesAdded(signal *dbus.Signal) {
	if len(signal.Body) < 2 {
		return
	}
	objPath, ok := signal.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	ifaces, ok := signal.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return
	}

	blockProps, hasBlock := ifaces[udisks2BlockInterface]
	fsProps, hasFS := ifaces[udisks2FSInterface]
	if !hasBlock || !hasFS {
		return
	}

	rec, ok := s.recordFromBlock(blockProps, fsProps)
	if !ok {
		return
	}

	d := Disk(objPath)
	s.mu.Lock()
	_, known := s.records[d]
	s.records[d] = rec
	s.mu.Unlock()

	log.Debug().Str("object", string(objPath)).Msg("block device appeared")

	if known {
		if s.changed != nil {
			s.changed(d)
		}
		return
	}
	if s.appeared != nil {
		s.appeared(d)
	}
}

func (s *dbusSession) handleInterfacesRemoved(signal *dbus.Signal) {
	if len(signal.Body) < 2 {
		return
	}
	objPath, ok := signal.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	ifaces, ok := signal.Body[1].([]string)
	if !ok {
		return
	}

	removed := false
	for _, iface := range ifaces {
		if iface == udisks2FSInterface || iface == udisks2BlockInterface {
			removed = true
			break
		}
	}
	if !removed {
		return
	}

	d := Disk(objPath)
	s.mu.RLock()
	_, known := s.records[d]
	s.mu.RUnlock()
	if !known {
		return
	}

	log.Debug().Str("object", string(objPath)).Msg("block device disappeared")

	// The cached record stays readable for the callback; evict after.
	if s.disappeared != nil {
		s.disappeared(d)
	}

	s.mu.Lock()
	delete(s.records, d)
	s.mu.Unlock()
}

// recordFromBlock builds a description record from UDisks2 block and
// filesystem properties, enriched with the owning drive's properties.
func (s *dbusSession) recordFromBlock(blockProps, fsProps map[string]dbus.Variant) (Record, bool) {
	if hintIgnore, ok := variantBool(blockProps, "HintIgnore"); ok && hintIgnore {
		return nil, false
	}

	system, hasSystem := variantBool(blockProps, "HintSystem")
	if hasSystem && system && !s.opts.IncludeSystemVolumes {
		return nil, false
	}

	if fstype, ok := variantString(blockProps, "IdType"); ok && s.opts.ignored(fstype) {
		return nil, false
	}

	rec := Record{}
	if hasSystem {
		rec[KeyVolumeSystem] = system
	}

	if uuid, ok := variantString(blockProps, "IdUUID"); ok && uuid != "" {
		rec[KeyVolumeUUID] = uuid
	}
	if label, ok := variantString(blockProps, "IdLabel"); ok && label != "" {
		rec[KeyVolumeName] = label
	}
	if size, ok := variantUint64(blockProps, "Size"); ok {
		rec[KeyMediaSize] = size
	}
	if ro, ok := variantBool(blockProps, "ReadOnly"); ok {
		rec[KeyMediaWritable] = !ro
	}

	node := variantBytePath(blockProps, "Device")
	if node != "" {
		rec[KeyMediaBSDName] = path.Base(node)
	}

	// The drive object path is shared by every partition of a device,
	// which makes it the device identity of choice. Fall back to the
	// node-derived parent when no drive is attached.
	drivePath, hasDrive := variantObjectPath(blockProps, "Drive")
	switch {
	case hasDrive && drivePath != "/":
		rec[KeyDevicePath] = drivePath
		s.mergeDriveProps(rec, drivePath)
	case node != "":
		rec[KeyDevicePath] = devicePathFromNode(node)
	}

	if mounts := mountPointsFromProps(fsProps); len(mounts) > 0 {
		rec[KeyVolumePath] = mounts[0]
	}

	return rec, true
}

// mergeDriveProps copies model, serial and removability information from
// the UDisks2 drive object into the record. Failures leave the record
// without those fields.
func (s *dbusSession) mergeDriveProps(rec Record, drivePath string) {
	obj := s.conn.Object(udisks2Service, dbus.ObjectPath(drivePath))
	var props map[string]dbus.Variant
	err := obj.Call("org.freedesktop.DBus.Properties.GetAll", 0, udisks2DriveInterface).Store(&props)
	if err != nil {
		log.Trace().Err(err).Str("drive", drivePath).Msg("drive properties unavailable")
		return
	}

	if model, ok := variantString(props, "Model"); ok && model != "" {
		rec[KeyDeviceModel] = model
	}
	if serial, ok := variantString(props, "Serial"); ok && serial != "" {
		rec[KeyMediaUUID] = serial
	}
	if name, ok := variantString(props, "Id"); ok && name != "" {
		rec[KeyMediaName] = name
	}
	if removable, ok := variantBool(props, "Removable"); ok {
		rec[KeyMediaRemovable] = removable
		rec[KeyDeviceInternal] = !removable
	}
	if ejectable, ok := variantBool(props, "Ejectable"); ok {
		rec[KeyMediaEjectable] = ejectable
	}
}

func variantString(props map[string]dbus.Variant, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

func variantBool(props map[string]dbus.Variant, key string) (bool, bool) {
	v, ok := props[key]
	if !ok {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}

func variantUint64(props map[string]dbus.Variant, key string) (uint64, bool) {
	v, ok := props[key]
	if !ok {
		return 0, false
	}
	n, ok := v.Value().(uint64)
	return n, ok
}

func variantObjectPath(props map[string]dbus.Variant, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	p, ok := v.Value().(dbus.ObjectPath)
	return string(p), ok
}

// variantBytePath decodes a NUL-terminated byte-array path property.
func variantBytePath(props map[string]dbus.Variant, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	raw, ok := v.Value().([]byte)
	if !ok || len(raw) == 0 {
		return ""
	}
	return strings.TrimRight(string(raw), "\x00")
}

func mountPointsFromProps(fsProps map[string]dbus.Variant) []string {
	v, ok := fsProps["MountPoints"]
	if !ok {
		return nil
	}
	raw, ok := v.Value().([][]byte)
	if !ok {
		return nil
	}
	mounts := make([]string, 0, len(raw))
	for _, mp := range raw {
		if len(mp) == 0 {
			continue
		}
		mounts = append(mounts, strings.TrimRight(string(mp), "\x00"))
	}
	return mounts
}
