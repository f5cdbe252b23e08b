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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordString(t *testing.T) {
	t.Parallel()

	rec := Record{
		KeyVolumeName: "CARD",
		KeyMediaSize:  uint64(1024),
	}

	v, ok := rec.String(KeyVolumeName)
	assert.True(t, ok)
	assert.Equal(t, "CARD", v)

	_, ok = rec.String("missing")
	assert.False(t, ok)

	// Wrong type reads as absent, not as a zero value hit.
	_, ok = rec.String(KeyMediaSize)
	assert.False(t, ok)
}

func TestRecordBool(t *testing.T) {
	t.Parallel()

	rec := Record{
		KeyMediaRemovable: true,
		KeyVolumeName:     "CARD",
	}

	v, ok := rec.Bool(KeyMediaRemovable)
	assert.True(t, ok)
	assert.True(t, v)

	_, ok = rec.Bool("missing")
	assert.False(t, ok)

	_, ok = rec.Bool(KeyVolumeName)
	assert.False(t, ok)
}

func TestRecordUint64(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    any
		expected uint64
		ok       bool
	}{
		{name: "uint64", value: uint64(42), expected: 42, ok: true},
		{name: "int64", value: int64(42), expected: 42, ok: true},
		{name: "int", value: 42, expected: 42, ok: true},
		{name: "negative int64", value: int64(-1), ok: false},
		{name: "negative int", value: -1, ok: false},
		{name: "string", value: "42", ok: false},
		{name: "nil", value: nil, ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := Record{KeyMediaSize: tt.value}
			v, ok := rec.Uint64(KeyMediaSize)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, v)
			}
		})
	}
}
