// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package magic implements magic number matching for on-disk format detection.
package magic

import "bytes"

// Magic defines a disk format magic value.
type Magic struct {
	// Value to search for.
	Value []byte

	// Offset on the device where the magic value is located.
	Offset int
}

// Matches returns true if the magic value is found at its offset in the buffer.
func (magic *Magic) Matches(buf []byte) bool {
	if len(buf) < magic.Offset+len(magic.Value) {
		return false
	}

	return bytes.Equal(buf[magic.Offset:magic.Offset+len(magic.Value)], magic.Value)
}

// Window returns the number of leading device bytes needed to match the magic.
func (magic *Magic) Window() int {
	return magic.Offset + len(magic.Value)
}
