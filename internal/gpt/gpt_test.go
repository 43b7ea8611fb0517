// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpt_test

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-fshost/internal/gpt"
)

const (
	sectorSize = 512
	numSectors = 64
	diskSize   = sectorSize * numSectors

	numEntries = 4
	entrySize  = 128
)

// diskGUID encodes a UUID in the on-disk mixed-endian GPT layout.
func diskGUID(u uuid.UUID) []byte {
	g := []byte{
		u[3], u[2], u[1], u[0],
		u[5], u[4],
		u[7], u[6],
		u[8], u[9],
	}

	return append(g, u[10:16]...)
}

type testEntry struct {
	typeGUID   uuid.UUID
	uniqueGUID uuid.UUID
	firstLBA   uint64
	lastLBA    uint64
	attributes uint64
}

func buildEntries(entries []testEntry) []byte {
	buf := make([]byte, numEntries*entrySize)

	for i, e := range entries {
		raw := buf[i*entrySize:]

		copy(raw[0:16], diskGUID(e.typeGUID))
		copy(raw[16:32], diskGUID(e.uniqueGUID))
		binary.LittleEndian.PutUint64(raw[32:40], e.firstLBA)
		binary.LittleEndian.PutUint64(raw[40:48], e.lastLBA)
		binary.LittleEndian.PutUint64(raw[48:56], e.attributes)
	}

	return buf
}

func buildHeader(myLBA, entriesLBA uint64, entriesBuf []byte) []byte {
	buf := make([]byte, sectorSize)

	binary.LittleEndian.PutUint64(buf[0:8], 0x5452415020494645) // "EFI PART"
	binary.LittleEndian.PutUint32(buf[8:12], 0x00010000)        // revision 1.0
	binary.LittleEndian.PutUint32(buf[12:16], 92)
	binary.LittleEndian.PutUint64(buf[24:32], myLBA)
	binary.LittleEndian.PutUint64(buf[40:48], 3)              // first usable
	binary.LittleEndian.PutUint64(buf[48:56], numSectors-2)   // last usable
	copy(buf[56:72], diskGUID(uuid.MustParse("b2a61d4e-8c78-4d67-a3fe-dbbc8a29cf5d")))
	binary.LittleEndian.PutUint64(buf[72:80], entriesLBA)
	binary.LittleEndian.PutUint32(buf[80:84], numEntries)
	binary.LittleEndian.PutUint32(buf[84:88], entrySize)
	binary.LittleEndian.PutUint32(buf[88:92], crc32.ChecksumIEEE(entriesBuf))
	binary.LittleEndian.PutUint32(buf[16:20], crc32.ChecksumIEEE(buf[:92]))

	return buf
}

func buildDisk(entries []testEntry) []byte {
	disk := make([]byte, diskSize)

	entriesBuf := buildEntries(entries)

	copy(disk[1*sectorSize:], buildHeader(1, 2, entriesBuf))
	copy(disk[2*sectorSize:], entriesBuf)

	return disk
}

func testEntries() []testEntry {
	return []testEntry{
		{
			typeGUID:   uuid.MustParse("2967380e-134c-4cbb-b6da-17e7ce1ca45d"),
			uniqueGUID: uuid.MustParse("0d2b4b1c-9f0a-44cf-b36e-85bf3d92cfa2"),
			firstLBA:   3,
			lastLBA:    20,
		},
		{}, // zero type GUID, skipped
		{
			typeGUID:   uuid.MustParse("606b000b-b7c7-4653-a7d5-b737332c899d"),
			uniqueGUID: uuid.MustParse("3c15f7e0-26a1-47a9-9bc9-0be4c60525e9"),
			firstLBA:   21,
			lastLBA:    40,
			attributes: gpt.AttrLegacyBIOSBootable,
		},
	}
}

func TestReadEntries(t *testing.T) {
	disk := buildDisk(testEntries())

	entries, err := gpt.ReadEntries(bytes.NewReader(disk), sectorSize, diskSize)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, uuid.MustParse("2967380e-134c-4cbb-b6da-17e7ce1ca45d"), entries[0].TypeGUID)
	assert.Equal(t, uint(1), entries[0].Index)
	assert.EqualValues(t, 3, entries[0].FirstLBA)
	assert.EqualValues(t, 20, entries[0].LastLBA)
	assert.EqualValues(t, 0, entries[0].Attributes)

	// the zero entry is skipped, but indices keep their table positions
	assert.Equal(t, uuid.MustParse("606b000b-b7c7-4653-a7d5-b737332c899d"), entries[1].TypeGUID)
	assert.Equal(t, uint(3), entries[1].Index)
	assert.EqualValues(t, gpt.AttrLegacyBIOSBootable, entries[1].Attributes)
}

func TestReadEntriesBackupHeader(t *testing.T) {
	entriesBuf := buildEntries(testEntries())

	disk := make([]byte, diskSize)
	copy(disk[30*sectorSize:], entriesBuf)
	copy(disk[(numSectors-1)*sectorSize:], buildHeader(numSectors-1, 30, entriesBuf))

	entries, err := gpt.ReadEntries(bytes.NewReader(disk), sectorSize, diskSize)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint(3), entries[1].Index)
}

func TestReadEntriesNoTable(t *testing.T) {
	entries, err := gpt.ReadEntries(bytes.NewReader(make([]byte, diskSize)), sectorSize, diskSize)
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestReadEntriesCorruptHeader(t *testing.T) {
	disk := buildDisk(testEntries())
	disk[1*sectorSize+40]++ // first usable LBA no longer matches the header checksum

	entries, err := gpt.ReadEntries(bytes.NewReader(disk), sectorSize, diskSize)
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestReadEntriesCorruptEntries(t *testing.T) {
	disk := buildDisk(testEntries())
	disk[2*sectorSize]++ // entry array no longer matches its checksum

	entries, err := gpt.ReadEntries(bytes.NewReader(disk), sectorSize, diskSize)
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestReadEntriesTinyDevice(t *testing.T) {
	entries, err := gpt.ReadEntries(bytes.NewReader(nil), sectorSize, 0)
	require.NoError(t, err)
	assert.Nil(t, entries)
}
