// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pkgfs_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/siderolabs/go-procfs/procfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-fshost/bootargs"
	"github.com/siderolabs/go-fshost/pkgfs"
)

func testResolver(t *testing.T, cmdline string, blobs map[string]string) *pkgfs.Resolver {
	t.Helper()

	blobRoot := t.TempDir()

	for blob, contents := range blobs {
		require.NoError(t, os.WriteFile(filepath.Join(blobRoot, blob), []byte(contents), 0o644))
	}

	dir, err := pkgfs.OpenBlobRoot(blobRoot)
	require.NoError(t, err)

	return pkgfs.NewResolver(pkgfs.NewManifest(bootargs.New(procfs.NewCmdline(cmdline))), dir)
}

func readAll(t *testing.T, f *os.File) string {
	t.Helper()

	defer f.Close() //nolint:errcheck

	contents, err := io.ReadAll(f)
	require.NoError(t, err)

	return string(contents)
}

func TestResolveObject(t *testing.T) {
	res := testResolver(t,
		"zircon.system.pkgfs.file.lib/ld.so.1=4ac6f1 zircon.system.pkgfs.file.lib/libfdio.so=77bd21",
		map[string]string{"4ac6f1": "loader contents", "77bd21": "fdio contents"})

	defer res.Close() //nolint:errcheck

	f, err := res.ResolveObject("ld.so.1")
	require.NoError(t, err)
	assert.Equal(t, "loader contents", readAll(t, f))

	f, err = res.ResolveObject("libfdio.so")
	require.NoError(t, err)
	assert.Equal(t, "fdio contents", readAll(t, f))

	// a name absent from the manifest always yields not found
	_, err = res.ResolveObject("libmissing.so")
	assert.ErrorIs(t, err, pkgfs.ErrNotFound)
}

func TestResolveAbsolute(t *testing.T) {
	res := testResolver(t,
		"zircon.system.pkgfs.file.bin/pkgsvr=3e9d6f",
		map[string]string{"3e9d6f": "pkgsvr binary"})

	defer res.Close() //nolint:errcheck

	f, err := res.ResolveAbsolute("/bin/pkgsvr")
	require.NoError(t, err)
	assert.Equal(t, "pkgsvr binary", readAll(t, f))

	_, err = res.ResolveAbsolute("/bin/other")
	assert.ErrorIs(t, err, pkgfs.ErrNotFound)
}

func TestResolveDanglingManifestEntry(t *testing.T) {
	// manifest entry present, but no such blob on the volume
	res := testResolver(t, "zircon.system.pkgfs.file.bin/pkgsvr=deadbeef", nil)

	defer res.Close() //nolint:errcheck

	_, err := res.ResolveAbsolute("/bin/pkgsvr")
	assert.ErrorIs(t, err, pkgfs.ErrNotFound)
}

func TestPublishDataSink(t *testing.T) {
	res := testResolver(t, "", nil)

	defer res.Close() //nolint:errcheck

	assert.ErrorIs(t, res.PublishDataSink("sink"), pkgfs.ErrNotSupported)
}

func TestManifest(t *testing.T) {
	m := pkgfs.NewManifest(bootargs.New(procfs.NewCmdline("zircon.system.pkgfs.file.bin/pkgsvr=3e9d6f")))

	blob, ok := m.BlobFor("bin/pkgsvr")
	assert.True(t, ok)
	assert.Equal(t, "3e9d6f", blob)

	_, ok = m.BlobFor("bin/pkgsvr2")
	assert.False(t, ok)
}
