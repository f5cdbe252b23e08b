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
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/storagewatch/storagewatch/pkg/storage"
	"github.com/storagewatch/storagewatch/pkg/storage/registry"
)

// snapshotSession walks every mounted filesystem the session reports and
// returns one consistent view of devices and volumes. Devices are merged
// by canonical ID: the first observation supplies the scalar fields,
// later observations only add to the volume set. Every translated volume
// is returned, including ones with no resolvable ID; records with no
// device ID contribute their volume but never a device. Disks whose
// description cannot be read anymore are skipped.
func snapshotSession(sess registry.Session, probe FreeSpaceFunc) ([]storage.Device, []storage.Volume, error) {
	disks, err := sess.Disks()
	if err != nil {
		return nil, nil, fmt.Errorf("enumerate disks: %w", err)
	}

	log.Trace().Int("disks", len(disks)).Msg("enumerated mounted filesystems")

	devices := make(map[string]*storage.Device)
	var volumes []storage.Volume

	for _, d := range disks {
		rec, ok := sess.Describe(d)
		if !ok {
			log.Trace().Str("disk", string(d)).Msg("disk vanished before description read")
			continue
		}

		dev, vol := translateRecord(rec, probe)

		if dev.ID != "" {
			key := dev.ID.Key()
			merged, ok := devices[key]
			if !ok {
				devCopy := dev
				merged = &devCopy
				devices[key] = merged
			}
			if vol.ID != "" {
				merged.Volumes.Add(vol.ID)
			}
		}

		volumes = append(volumes, vol)
	}

	keys := make([]string, 0, len(devices))
	for k := range devices {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]storage.Device, 0, len(keys))
	for _, k := range keys {
		out = append(out, *devices[k])
	}

	log.Debug().
		Int("devices", len(out)).
		Int("volumes", len(volumes)).
		Msg("storage snapshot complete")

	return out, volumes, nil
}
