// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package pkgfs bootstraps the package filesystem from content-addressed
// blobs before any path-based filesystem exists to serve them.
package pkgfs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/siderolabs/go-fshost/bootargs"
)

// Namespace paths published once the package filesystem is ready.
const (
	// PkgfsPath is where the package filesystem root is installed.
	PkgfsPath = "/pkgfs"
	// SystemPath is where the system sub-view of the package filesystem is
	// installed.
	SystemPath = "/system"

	// systemView is the sub-view re-derived from the package filesystem root.
	systemView = "system"
)

// DefaultBlobRoot is the mounted blob volume root the resolver reads from.
const DefaultBlobRoot = "/fs/blob"

// DefaultReadyTimeout bounds the wait for the package filesystem readiness
// signal.
const DefaultReadyTimeout = 5 * time.Second

// Dir is a directory handle that can be grafted into the global namespace.
type Dir interface {
	// OpenDir opens a subdirectory view.
	OpenDir(name string) (Dir, error)
	Close() error
}

// Process is a handle to a launched package filesystem process.
type Process interface {
	// Ready is closed once the process signals it is serving requests. The
	// signal is out-of-band: it is distinct from process termination.
	Ready() <-chan struct{}
	// Done is closed once the process terminates.
	Done() <-chan struct{}
}

// Launcher starts the package filesystem process. External collaborator.
type Launcher interface {
	// Launch starts argv with the resolver installed as the process's
	// dynamic-loader service. The returned Dir is the host end of the private
	// channel handed to the process as its root directory.
	//
	// On success the launcher takes ownership of the resolver and releases it
	// when the process is torn down; on error the caller keeps ownership.
	Launch(ctx context.Context, argv []string, res BlobResolver) (Process, Dir, error)

	// LaunchFile starts the binary at path directly, without a resolver.
	LaunchFile(ctx context.Context, path string, args []string) (Process, Dir, error)
}

// Installer grafts directory handles into the global namespace. External
// collaborator.
type Installer interface {
	// Install publishes dir at path. The handle remains owned by the caller
	// and stays valid only for the duration of the call.
	Install(path string, dir Dir) error
}

// Starter unblocks dependent service startup once a system root is served.
type Starter interface {
	Start()
}

// Bootstrapper drives the package filesystem bootstrap once the blob volume
// is mounted.
type Bootstrapper struct {
	logger    *zap.Logger
	args      *bootargs.Args
	launcher  Launcher
	installer Installer
	starter   Starter

	blobRoot        string
	readyTimeout    time.Duration
	secondaryBootfs func() bool
}

// Option customizes the Bootstrapper.
type Option func(*Bootstrapper)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bootstrapper) {
		b.logger = logger
	}
}

// WithBlobRoot overrides the blob volume root path.
func WithBlobRoot(path string) Option {
	return func(b *Bootstrapper) {
		b.blobRoot = path
	}
}

// WithReadyTimeout overrides the readiness wait bound.
func WithReadyTimeout(timeout time.Duration) Option {
	return func(b *Bootstrapper) {
		b.readyTimeout = timeout
	}
}

// WithSecondaryBootfsCheck sets the probe reporting whether an alternate boot
// filesystem already serves the system root.
func WithSecondaryBootfsCheck(check func() bool) Option {
	return func(b *Bootstrapper) {
		b.secondaryBootfs = check
	}
}

// New builds a Bootstrapper.
func New(args *bootargs.Args, launcher Launcher, installer Installer, starter Starter, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		logger:          zap.NewNop(),
		args:            args,
		launcher:        launcher,
		installer:       installer,
		starter:         starter,
		blobRoot:        DefaultBlobRoot,
		readyTimeout:    DefaultReadyTimeout,
		secondaryBootfs: func() bool { return false },
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}
