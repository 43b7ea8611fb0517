// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package format

import (
	"errors"
	"io"
	"slices"

	"github.com/siderolabs/gen/xslices"

	"github.com/siderolabs/go-fshost/format/internal/magic"
)

type signature struct {
	magic  magic.Magic
	format Format
}

// signatures is scanned in order; the first match wins.
//
// The FAT string signatures come before the bare MBR boot signature so that
// FAT volumes (which also carry the 0x55aa boot signature) are not classified
// as partition containers.
var signatures = []signature{
	{magic.Magic{Offset: 512, Value: []byte("EFI PART")}, GPT},
	{magic.Magic{Offset: 0, Value: []byte("FVM PART")}, FVM},
	{magic.Magic{Offset: 0, Value: []byte("zxcrypt\x00")}, Zxcrypt},
	// 0xac2153479e694d21, little-endian.
	{magic.Magic{Offset: 0, Value: []byte{0x21, 0x4d, 0x69, 0x9e, 0x47, 0x53, 0x21, 0xac}}, Blobfs},
	// 0x002153466e694d21, little-endian ("!MinFS!\x00").
	{magic.Magic{Offset: 0, Value: []byte("!MinFS!\x00")}, Minfs},
	{magic.Magic{Offset: 82, Value: []byte("FAT32   ")}, FAT},
	{magic.Magic{Offset: 54, Value: []byte("FAT1")}, FAT},
	{magic.Magic{Offset: 510, Value: []byte{0x55, 0xaa}}, MBR},
}

var maxWindow = slices.Max(xslices.Map(signatures, func(s signature) int { return s.magic.Window() }))

// Detect classifies the on-disk format of the device.
//
// An unrecognized format is not an error: the result is simply Unknown.
func Detect(r io.ReaderAt) (Format, error) {
	buf := make([]byte, maxWindow)

	n, err := r.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return Unknown, err
	}

	buf = buf[:n]

	for _, sig := range signatures {
		if sig.magic.Matches(buf) {
			return sig.format, nil
		}
	}

	return Unknown, nil
}
