// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pkgfs

import "github.com/siderolabs/go-fshost/bootargs"

// Manifest maps logical file paths to content-addressed blob identifiers.
//
// Entries are sourced from boot configuration keys under the
// bootargs.PkgfsFilePrefix prefix; the mapping is never mutated and is
// consulted only during bootstrap.
type Manifest struct {
	args *bootargs.Args
}

// NewManifest returns the manifest embedded in the boot configuration.
func NewManifest(args *bootargs.Args) Manifest {
	return Manifest{args: args}
}

// BlobFor resolves a logical file path to a blob identifier.
//
// A missing entry is "not found", not an error.
func (m Manifest) BlobFor(logical string) (string, bool) {
	return m.args.Get(bootargs.PkgfsFilePrefix + logical)
}
