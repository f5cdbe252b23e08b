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

// DeviceKind classifies a storage device.
type DeviceKind int

const (
	KindOther DeviceKind = iota
	KindUSBFlashDrive
	KindSDCard
	KindMicroSDCard
	KindInternalDrive
	KindExternalDrive
)

func (k DeviceKind) String() string {
	switch k {
	case KindUSBFlashDrive:
		return "usb-flash-drive"
	case KindSDCard:
		return "sd-card"
	case KindMicroSDCard:
		return "micro-sd-card"
	case KindInternalDrive:
		return "internal-drive"
	case KindExternalDrive:
		return "external-drive"
	default:
		return "other"
	}
}

// MarshalText implements encoding.TextMarshaler so kinds serialize as
// their string form.
func (k DeviceKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// kindRules maps known device-model strings to a kind. Evaluated top to
// bottom, first match wins. Model hints take precedence over the internal
// flag: the flag alone cannot distinguish a card reader from a fixed disk.
var kindRules = []struct {
	model string
	kind  DeviceKind
}{
	{"SD/MMC", KindSDCard},
	{"Micro SD/M2", KindMicroSDCard},
	{"Flash Disk", KindUSBFlashDrive},
}

// ClassifyKind derives a device kind from the reported model string and
// internal flag. A nil internal flag means the platform did not report it.
func ClassifyKind(model string, internal *bool) DeviceKind {
	for _, rule := range kindRules {
		if model == rule.model {
			return rule.kind
		}
	}
	switch {
	case internal == nil:
		return KindOther
	case *internal:
		return KindInternalDrive
	default:
		return KindExternalDrive
	}
}
