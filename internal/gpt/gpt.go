// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gpt reads GPT partition entries from a whole disk.
//
// This is a read-only view used to look up the type GUID and attributes of a
// partition device; the table itself is owned by the partition-table driver.
package gpt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"slices"

	"github.com/google/uuid"
)

const (
	headerSignature = 0x5452415020494645 // "EFI PART"
	headerSize      = 92
	entrySize       = 128
	maxEntries      = 128

	primaryLBA = 1
)

// Entry attribute bits.
const (
	AttrRequired           = 1 << 0
	AttrLegacyBIOSBootable = 1 << 2
)

// Entry is a single partition table entry.
type Entry struct {
	TypeGUID   uuid.UUID
	UniqueGUID uuid.UUID

	FirstLBA uint64
	LastLBA  uint64

	Attributes uint64

	// Index is the 1-based position in the table.
	Index uint
}

// ReadEntries reads and verifies the partition table of a disk.
//
// The primary header at LBA 1 is tried first, then the backup header at the
// last LBA. A disk without a valid table yields (nil, nil): absence of a
// table is not an error.
func ReadEntries(r io.ReaderAt, sectorSize uint, size uint64) ([]Entry, error) {
	if sectorSize == 0 || uint64(sectorSize) > size {
		return nil, nil
	}

	lastLBA := size/uint64(sectorSize) - 1

	entries, err := readTable(r, sectorSize, primaryLBA, lastLBA)
	if err != nil {
		return nil, err
	}

	if entries == nil {
		entries, err = readTable(r, sectorSize, lastLBA, lastLBA)
		if err != nil {
			return nil, err
		}
	}

	return entries, nil
}

//nolint:gocyclo
func readTable(r io.ReaderAt, sectorSize uint, lba, lastLBA uint64) ([]Entry, error) {
	buf := make([]byte, sectorSize)

	if err := readFullAt(r, buf, int64(lba)*int64(sectorSize)); err != nil {
		return nil, err
	}

	if binary.LittleEndian.Uint64(buf[0:8]) != headerSignature {
		return nil, nil
	}

	hdrSize := binary.LittleEndian.Uint32(buf[12:16])
	if hdrSize < headerSize || uint(hdrSize) > sectorSize {
		return nil, nil
	}

	// the checksum field is zeroed while checksumming the header
	scratch := slices.Clone(buf[:hdrSize])
	scratch[16], scratch[17], scratch[18], scratch[19] = 0, 0, 0, 0

	if binary.LittleEndian.Uint32(buf[16:20]) != crc32.ChecksumIEEE(scratch) {
		return nil, nil
	}

	if binary.LittleEndian.Uint64(buf[24:32]) != lba {
		return nil, nil
	}

	firstUsableLBA := binary.LittleEndian.Uint64(buf[40:48])
	lastUsableLBA := binary.LittleEndian.Uint64(buf[48:56])

	if lastUsableLBA < firstUsableLBA || firstUsableLBA > lastLBA || lastUsableLBA > lastLBA {
		return nil, nil
	}

	entriesLBA := binary.LittleEndian.Uint64(buf[72:80])
	numEntries := binary.LittleEndian.Uint32(buf[80:84])

	if binary.LittleEndian.Uint32(buf[84:88]) != entrySize {
		return nil, nil
	}

	if numEntries == 0 || numEntries > maxEntries {
		return nil, nil
	}

	entriesBuf := make([]byte, numEntries*entrySize)

	if err := readFullAt(r, entriesBuf, int64(entriesLBA)*int64(sectorSize)); err != nil {
		return nil, err
	}

	if binary.LittleEndian.Uint32(buf[88:92]) != crc32.ChecksumIEEE(entriesBuf) {
		return nil, nil
	}

	zeroGUID := make([]byte, 16)
	entries := make([]Entry, 0, numEntries)

	for i := uint(0); i < uint(numEntries); i++ {
		raw := entriesBuf[i*entrySize : (i+1)*entrySize]

		if bytes.Equal(raw[0:16], zeroGUID) {
			continue
		}

		entries = append(entries, Entry{
			TypeGUID:   mixedEndianUUID(raw[0:16]),
			UniqueGUID: mixedEndianUUID(raw[16:32]),
			FirstLBA:   binary.LittleEndian.Uint64(raw[32:40]),
			LastLBA:    binary.LittleEndian.Uint64(raw[40:48]),
			Attributes: binary.LittleEndian.Uint64(raw[48:56]),
			Index:      i + 1,
		})
	}

	return entries, nil
}

// mixedEndianUUID decodes a GPT GUID: the first three groups are
// little-endian, the rest is big-endian.
func mixedEndianUUID(g []byte) uuid.UUID {
	var u uuid.UUID

	copy(u[:], []byte{
		g[3], g[2], g[1], g[0],
		g[5], g[4],
		g[7], g[6],
		g[8], g[9],
	})
	copy(u[10:], g[10:16])

	return u
}

func readFullAt(r io.ReaderAt, buf []byte, offset int64) error {
	n, err := r.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	if n != len(buf) {
		return io.ErrUnexpectedEOF
	}

	return nil
}
