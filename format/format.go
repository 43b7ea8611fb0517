// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package format classifies the on-disk format of block devices.
package format

// Format is a detected on-disk format.
type Format int

// Known on-disk formats.
const (
	Unknown Format = iota
	GPT
	MBR
	FVM
	Zxcrypt
	Blobfs
	Minfs
	FAT
)

func (f Format) String() string {
	switch f {
	case GPT:
		return "gpt"
	case MBR:
		return "mbr"
	case FVM:
		return "fvm"
	case Zxcrypt:
		return "zxcrypt"
	case Blobfs:
		return "blobfs"
	case Minfs:
		return "minfs"
	case FAT:
		return "fat"
	case Unknown:
		fallthrough
	default:
		return "unknown"
	}
}

// IsContainer reports whether the format holds other partitions or volumes.
//
// Container formats are never mounted directly: the matching sub-driver is
// bound to the device instead, and the child block devices it enumerates
// re-enter the pipeline through new arrival events.
func (f Format) IsContainer() bool {
	switch f {
	case GPT, MBR, FVM, Zxcrypt:
		return true
	case Unknown, Blobfs, Minfs, FAT:
		fallthrough
	default:
		return false
	}
}
