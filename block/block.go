// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package block provides handles to newly observed block devices.
package block

import (
	"os"

	"github.com/siderolabs/go-fshost/internal/gpt"
)

// DefaultBlockSize is the default block size in bytes.
const DefaultBlockSize = 512

// Flags are block-layer device flags.
type Flags uint32

// Block-layer flags.
const (
	// FlagRemovable marks a device backed by removable media.
	FlagRemovable Flags = 1 << iota
	// FlagBootPartition marks a dedicated boot partition that is handed to
	// the boot-partition driver regardless of its content format.
	FlagBootPartition
)

// Device is an ephemeral handle to a block device.
//
// The handle is owned by the processing call for its duration and must be
// closed on every exit path.
type Device struct {
	f    *os.File
	path string

	devNo uint64

	entry     *gpt.Entry
	entryRead bool
}

// NewFromFile returns a new Device over an already open file.
func NewFromFile(f *os.File, path string) *Device {
	return &Device{f: f, path: path}
}

// Path returns the device path.
func (d *Device) Path() string {
	return d.path
}

// ReadAt implements io.ReaderAt.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

// Close releases the device handle.
func (d *Device) Close() error {
	return d.f.Close()
}
