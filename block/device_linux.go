// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package block

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/siderolabs/go-fshost/internal/gpt"
)

// NewFromPath opens the block device at the specified path.
func NewFromPath(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}

	return NewFromFile(f, path), nil
}

// GetSize returns blockdevice size in bytes.
func (d *Device) GetSize() (uint64, error) {
	var devsize uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&devsize))); errno != 0 {
		return 0, errno
	}

	return devsize, nil
}

// GetSectorSize returns blockdevice sector size in bytes.
func (d *Device) GetSectorSize() uint {
	var size uint

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(unix.BLKSSZGET), uintptr(unsafe.Pointer(&size))); errno != 0 {
		return DefaultBlockSize
	}

	return size
}

// GetDevNo returns the device number of the blockdevice.
func (d *Device) GetDevNo() (uint64, error) {
	if d.devNo != 0 {
		return d.devNo, nil
	}

	var st unix.Stat_t
	if err := unix.Fstat(int(d.f.Fd()), &st); err != nil {
		return 0, err
	}

	d.devNo = st.Rdev

	return d.devNo, nil
}

func (d *Device) sysFsPath() (string, error) {
	devNo, err := d.GetDevNo()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("/sys/dev/block/%d:%d", unix.Major(devNo), unix.Minor(devNo)), nil
}

// partitionNumber returns the 1-based partition index, or 0 for a whole disk.
func (d *Device) partitionNumber() (uint, error) {
	sysFsPath, err := d.sysFsPath()
	if err != nil {
		return 0, err
	}

	contents, err := os.ReadFile(filepath.Join(sysFsPath, "partition"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, err
	}

	num, err := strconv.ParseUint(strings.TrimSpace(string(contents)), 10, 32)
	if err != nil {
		return 0, err
	}

	return uint(num), nil
}

// diskSysFsPath resolves the sysfs directory of the whole disk backing the
// device (the device's own directory if it is a whole disk).
func (d *Device) diskSysFsPath() (string, error) {
	sysFsPath, err := d.sysFsPath()
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(sysFsPath)
	if err != nil {
		return "", err
	}

	num, err := d.partitionNumber()
	if err != nil {
		return "", err
	}

	if num > 0 {
		// partition directories nest under the disk directory
		resolved = filepath.Dir(resolved)
	}

	return resolved, nil
}

// wholeDisk opens the disk backing the device.
func (d *Device) wholeDisk() (*Device, error) {
	diskPath, err := d.diskSysFsPath()
	if err != nil {
		return nil, err
	}

	return NewFromPath(filepath.Join("/dev", filepath.Base(diskPath)))
}

// Flags returns the block-layer flags of the device.
func (d *Device) Flags() (Flags, error) {
	var flags Flags

	diskPath, err := d.diskSysFsPath()
	if err != nil {
		return 0, err
	}

	removable, err := os.ReadFile(filepath.Join(diskPath, "removable"))
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}

	if len(removable) > 0 && removable[0] == '1' {
		flags |= FlagRemovable
	}

	entry, err := d.gptEntry()
	if err != nil {
		return 0, err
	}

	if entry != nil && entry.Attributes&gpt.AttrLegacyBIOSBootable != 0 {
		flags |= FlagBootPartition
	}

	return flags, nil
}

// TypeGUID returns the partition type GUID from the backing disk's partition
// table.
//
// Absence of a table or an entry is not an error: the device simply has no
// type GUID.
func (d *Device) TypeGUID() (uuid.UUID, bool) {
	entry, err := d.gptEntry()
	if err != nil || entry == nil {
		return uuid.UUID{}, false
	}

	return entry.TypeGUID, true
}

func (d *Device) gptEntry() (*gpt.Entry, error) {
	if d.entryRead {
		return d.entry, nil
	}

	num, err := d.partitionNumber()
	if err != nil {
		return nil, err
	}

	if num == 0 {
		d.entryRead = true

		return nil, nil
	}

	disk, err := d.wholeDisk()
	if err != nil {
		return nil, err
	}

	defer disk.Close() //nolint:errcheck

	size, err := disk.GetSize()
	if err != nil {
		return nil, err
	}

	entries, err := gpt.ReadEntries(disk, disk.GetSectorSize(), size)
	if err != nil {
		return nil, err
	}

	d.entryRead = true

	for i := range entries {
		if entries[i].Index == num {
			d.entry = &entries[i]

			break
		}
	}

	return d.entry, nil
}
