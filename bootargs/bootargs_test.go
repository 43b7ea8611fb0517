// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootargs_test

import (
	"testing"

	"github.com/siderolabs/go-procfs/procfs"
	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-fshost/bootargs"
)

func TestGet(t *testing.T) {
	args := bootargs.New(procfs.NewCmdline(
		"zircon.system.volume=local zircon.system.pkgfs.cmd=pkgsvr zircon.system.pkgfs.file.bin/pkgsvr=3e9d6f"))

	value, ok := args.Get(bootargs.SystemVolume)
	assert.True(t, ok)
	assert.Equal(t, "local", value)

	value, ok = args.Get(bootargs.PkgfsCmd)
	assert.True(t, ok)
	assert.Equal(t, "pkgsvr", value)

	value, ok = args.Get(bootargs.PkgfsFilePrefix + "bin/pkgsvr")
	assert.True(t, ok)
	assert.Equal(t, "3e9d6f", value)

	_, ok = args.Get(bootargs.BlobInit)
	assert.False(t, ok)
}

func TestHas(t *testing.T) {
	args := bootargs.New(procfs.NewCmdline("zircon.system.writable=true"))

	assert.True(t, args.Has(bootargs.SystemWritable))
	assert.False(t, args.Has(bootargs.SystemVolume))
}

func TestBool(t *testing.T) {
	args := bootargs.New(procfs.NewCmdline(
		"zircon.system.filesystem-check=true netsvc.netboot=off other=0"))

	assert.True(t, args.Bool(bootargs.FilesystemCheck, false))
	assert.False(t, args.Bool(bootargs.Netboot, true))
	assert.False(t, args.Bool("other", true))
	assert.True(t, args.Bool("missing", true))
	assert.False(t, args.Bool("missing", false))
}
