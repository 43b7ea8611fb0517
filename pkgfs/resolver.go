// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pkgfs

import (
	"errors"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Resolver errors.
var (
	// ErrNotFound means the name has no manifest entry or its blob cannot be
	// opened.
	ErrNotFound = errors.New("blob not found")
	// ErrNotSupported rejects operations outside the read-only, one-way
	// bootstrap protocol.
	ErrNotSupported = errors.New("not supported by the bootstrap resolver")
)

// libDir implicitly prefixes shared-library lookups.
const libDir = "lib/"

// BlobResolver resolves logical file names to open blob contents.
type BlobResolver interface {
	ResolveObject(name string) (*os.File, error)
	ResolveAbsolute(path string) (*os.File, error)
	PublishDataSink(name string) error
	Close() error
}

// Resolver is the minimal boot-time name resolver: it maps logical paths to
// blobs through the manifest and serves their contents from the blob volume.
//
// The Resolver exclusively owns the blob directory handle for its lifetime
// and is its only releaser.
type Resolver struct {
	manifest Manifest
	dir      *os.File
}

// OpenBlobRoot opens the blob volume root for use with NewResolver.
func OpenBlobRoot(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
}

// NewResolver binds a resolver to the blob directory handle, taking ownership
// of it.
func NewResolver(manifest Manifest, dir *os.File) *Resolver {
	return &Resolver{manifest: manifest, dir: dir}
}

// ResolveObject resolves a shared-library name.
func (r *Resolver) ResolveObject(name string) (*os.File, error) {
	return r.open(libDir + name)
}

// ResolveAbsolute resolves an absolute path.
func (r *Resolver) ResolveAbsolute(path string) (*os.File, error) {
	return r.open(strings.TrimPrefix(path, "/"))
}

// PublishDataSink rejects publishing a data sink back to the host: the
// bootstrap resolver is read-only and one-directional.
func (r *Resolver) PublishDataSink(string) error {
	return ErrNotSupported
}

// Close releases the blob directory handle.
func (r *Resolver) Close() error {
	return r.dir.Close()
}

func (r *Resolver) open(logical string) (*os.File, error) {
	blob, ok := r.manifest.BlobFor(logical)
	if !ok {
		return nil, ErrNotFound
	}

	fd, err := unix.Openat(int(r.dir.Fd()), blob, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, ErrNotFound
	}

	return os.NewFile(uintptr(fd), blob), nil
}
