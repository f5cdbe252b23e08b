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

package storage

import (
	"sort"
	"strings"
)

// DeviceID identifies one storage device. IDs compare case-insensitively;
// the raw spelling is preserved for display and round-tripping. A DeviceID
// is not guaranteed to be stable across disconnect/reconnect cycles — use
// Device.Serial for a hardware-tied identifier.
type DeviceID string

// Key returns the canonical form of the ID. Any map keyed by device
// identity must be keyed by this value, never the raw string, so that
// equal IDs always land in the same bucket.
func (id DeviceID) Key() string { return strings.ToLower(string(id)) }

// Equal reports whether two IDs refer to the same device.
func (id DeviceID) Equal(other DeviceID) bool { return id.Key() == other.Key() }

func (id DeviceID) String() string { return string(id) }

// VolumeID identifies one volume, with the same case-insensitive equality
// rules as DeviceID.
type VolumeID string

// Key returns the canonical form of the ID, suitable as a map key.
func (id VolumeID) Key() string { return strings.ToLower(string(id)) }

// Equal reports whether two IDs refer to the same volume.
func (id VolumeID) Equal(other VolumeID) bool { return id.Key() == other.Key() }

func (id VolumeID) String() string { return string(id) }

// VolumeIDSet is a set of volume IDs keyed by canonical form. The raw
// spelling of the first-added ID is retained.
type VolumeIDSet map[string]VolumeID

// NewVolumeIDSet returns a set containing the given IDs.
func NewVolumeIDSet(ids ...VolumeID) VolumeIDSet {
	s := make(VolumeIDSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts an ID into the set.
func (s VolumeIDSet) Add(id VolumeID) {
	if _, ok := s[id.Key()]; !ok {
		s[id.Key()] = id
	}
}

// Contains reports whether the set holds an ID equal to id.
func (s VolumeIDSet) Contains(id VolumeID) bool {
	_, ok := s[id.Key()]
	return ok
}

// Len returns the number of IDs in the set.
func (s VolumeIDSet) Len() int { return len(s) }

// IDs returns the members ordered by canonical key.
func (s VolumeIDSet) IDs() []VolumeID {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ids := make([]VolumeID, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, s[k])
	}
	return ids
}

// Clone returns a copy of the set.
func (s VolumeIDSet) Clone() VolumeIDSet {
	c := make(VolumeIDSet, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}
