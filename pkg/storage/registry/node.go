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
	"path"
	"regexp"
)

var (
	darwinSliceRe  = regexp.MustCompile(`^(disk\d+)s\d+$`)
	numberedPartRe = regexp.MustCompile(`^([a-z]+\d+n\d+|mmcblk\d+|loop\d+)p\d+$`)
	trailingPartRe = regexp.MustCompile(`^([a-z]+)\d+$`)
)

// devicePathFromNode reduces a partition device node to the node of its
// hosting device: /dev/disk2s1 -> /dev/disk2, /dev/sda1 -> /dev/sda,
// /dev/nvme0n1p2 -> /dev/nvme0n1. Nodes without a recognizable partition
// suffix are returned unchanged, so whole-disk nodes map to themselves.
func devicePathFromNode(node string) string {
	dir, base := path.Split(node)
	for _, re := range []*regexp.Regexp{darwinSliceRe, numberedPartRe, trailingPartRe} {
		if m := re.FindStringSubmatch(base); m != nil {
			return dir + m[1]
		}
	}
	return node
}
