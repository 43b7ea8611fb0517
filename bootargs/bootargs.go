// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package bootargs provides a read-only view of the boot configuration
// passed on the kernel command line.
package bootargs

import (
	"github.com/siderolabs/go-procfs/procfs"
)

// Boot configuration keys consumed during storage bring-up.
const (
	// BlobInit is the legacy single-binary bootstrap path (blob-relative).
	BlobInit = "zircon.system.blob-init"
	// BlobInitArg is the optional argument to the legacy bootstrap binary.
	BlobInitArg = "zircon.system.blob-init-arg"
	// PkgfsCmd is the package filesystem launch command line.
	PkgfsCmd = "zircon.system.pkgfs.cmd"
	// PkgfsFilePrefix prefixes bootstrap manifest entries mapping logical
	// file paths to content-addressed blob identifiers.
	PkgfsFilePrefix = "zircon.system.pkgfs.file."
	// SystemVolume selects the system partition acceptance policy:
	// "any", "local", or unset (reject).
	SystemVolume = "zircon.system.volume"
	// SystemWritable, when present, mounts the system volume writable.
	SystemWritable = "zircon.system.writable"
	// FilesystemCheck enables the offline consistency check before mounts.
	FilesystemCheck = "zircon.system.filesystem-check"
	// Netboot marks a network boot.
	Netboot = "netsvc.netboot"
)

// Args is a read-only key/value view over the kernel command line.
type Args struct {
	cmdline *procfs.Cmdline
}

// New returns boot arguments backed by the given command line.
func New(cmdline *procfs.Cmdline) *Args {
	return &Args{cmdline: cmdline}
}

// FromProc returns the boot arguments of the running kernel.
func FromProc() *Args {
	return New(procfs.ProcCmdline())
}

// Get returns the first value of the key.
func (a *Args) Get(key string) (string, bool) {
	param := a.cmdline.Get(key)
	if param == nil {
		return "", false
	}

	value := param.First()
	if value == nil {
		return "", false
	}

	return *value, true
}

// Has reports whether the key is present, regardless of its value.
func (a *Args) Has(key string) bool {
	return a.cmdline.Get(key) != nil
}

// Bool interprets the key as a boolean, returning def when the key is absent.
func (a *Args) Bool(key string, def bool) bool {
	value, ok := a.Get(key)
	if !ok {
		return def
	}

	switch value {
	case "0", "false", "off", "no":
		return false
	default:
		return true
	}
}
