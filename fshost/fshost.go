// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package fshost drives boot-time storage bring-up: it observes block devices
// as they appear, classifies their on-disk format and partition role, and
// mounts the system, data, install and blob volumes exactly once each.
package fshost

import (
	"context"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siderolabs/go-fshost/block"
	"github.com/siderolabs/go-fshost/bootargs"
	"github.com/siderolabs/go-fshost/format"
)

// Fixed mount paths.
const (
	PathSystem  = "/fs/system"
	PathData    = "/fs/data"
	PathInstall = "/fs/install"
	PathBlob    = "/fs/blob"
	PathVolume  = "/fs/volume"

	// PathDevBlock is the watched block device directory.
	PathDevBlock = "/dev/class/block"
)

// Driver libraries bound to container and boot-partition devices.
const (
	DriverGPT      = "/boot/driver/gpt.so"
	DriverMBR      = "/boot/driver/mbr.so"
	DriverFVM      = "/boot/driver/fvm.so"
	DriverZxcrypt  = "/boot/driver/zxcrypt.so"
	DriverBootpart = "/boot/driver/bootpart.so"
)

// Device is the handle to a newly arrived block device.
//
// It is implemented by *block.Device; the handle is owned by the processing
// call for its duration and is closed on every exit path.
type Device interface {
	io.ReaderAt

	Path() string
	Flags() (block.Flags, error)
	TypeGUID() (uuid.UUID, bool)
	Close() error
}

// MountOptions control a single mount call.
type MountOptions struct {
	// ReadOnly mounts the filesystem immutable.
	ReadOnly bool
	// WaitUntilReady blocks the caller until the filesystem signals
	// readiness.
	WaitUntilReady bool
	// CreateMountpoint creates the target directory if absent.
	CreateMountpoint bool
}

// DefaultMountOptions returns the baseline options of a mount call.
func DefaultMountOptions() MountOptions {
	return MountOptions{WaitUntilReady: true}
}

// LaunchFunc starts the filesystem server process backing a mount; it is
// format-specific and supplied by the orchestrator with each mount call.
type LaunchFunc func(ctx context.Context, argv []string) error

// Mounter performs the mount call. External collaborator.
type Mounter interface {
	Mount(ctx context.Context, dev Device, target string, fs format.Format, opts MountOptions, launch LaunchFunc) error
}

// Binder binds a driver to a device. External collaborator.
//
// Bound container drivers enumerate child block devices which re-enter the
// pipeline through new arrival events.
type Binder interface {
	Bind(dev Device, driver string) error
}

// ProcessLauncher spawns filesystem server and checker processes. External
// collaborator.
type ProcessLauncher interface {
	Launch(ctx context.Context, name string, argv []string) error
}

// CheckLauncher runs the offline consistency checker against a device and
// blocks until it terminates; any failure to launch, wait or a non-zero exit
// is uniformly a check failure.
type CheckLauncher interface {
	Check(ctx context.Context, binary, devicePath string) error
}

// Bootstrapper starts the package filesystem once the blob volume is
// mounted. Implemented by *pkgfs.Bootstrapper.
type Bootstrapper interface {
	Bootstrap(ctx context.Context)
}

// Starter unblocks dependent service startup once a real filesystem serves
// the system root.
type Starter interface {
	Start()
}

// mountState is the process-wide mount bookkeeping.
//
// The latches are set once and never reset for the lifetime of the process.
// State is mutated only from the single event goroutine; an implementation
// on a concurrent event source must serialize access explicitly.
type mountState struct {
	systemMounted  bool
	dataMounted    bool
	installMounted bool
	blobMounted    bool

	fatCounter int
}

// FsHost is the mount orchestrator and watcher driver.
type FsHost struct {
	logger *zap.Logger
	args   *bootargs.Args

	mounter   Mounter
	binder    Binder
	procs     ProcessLauncher
	fsck      CheckLauncher
	bootstrap Bootstrapper
	starter   Starter

	netboot         bool
	devicePath      string
	secondaryBootfs func() bool

	state mountState
}

// Option customizes the FsHost.
type Option func(*FsHost)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *FsHost) {
		h.logger = logger
	}
}

// WithNetboot restricts the orchestrator to the install partition: in
// network boot mode no other device is bound or mounted.
func WithNetboot(netboot bool) Option {
	return func(h *FsHost) {
		h.netboot = netboot
	}
}

// WithDevicePath overrides the watched block device directory.
func WithDevicePath(path string) Option {
	return func(h *FsHost) {
		h.devicePath = path
	}
}

// WithProcessLauncher overrides the filesystem server process launcher.
func WithProcessLauncher(procs ProcessLauncher) Option {
	return func(h *FsHost) {
		h.procs = procs
	}
}

// WithCheckLauncher overrides the consistency checker launcher.
func WithCheckLauncher(fsck CheckLauncher) Option {
	return func(h *FsHost) {
		h.fsck = fsck
	}
}

// WithSecondaryBootfsCheck sets the probe reporting whether an alternate
// boot filesystem already serves the system root.
func WithSecondaryBootfsCheck(check func() bool) Option {
	return func(h *FsHost) {
		h.secondaryBootfs = check
	}
}

// New builds the orchestrator.
func New(args *bootargs.Args, mounter Mounter, binder Binder, bootstrap Bootstrapper, starter Starter, opts ...Option) *FsHost {
	h := &FsHost{
		logger:          zap.NewNop(),
		args:            args,
		mounter:         mounter,
		binder:          binder,
		procs:           ExecLauncher{},
		fsck:            ExecLauncher{},
		bootstrap:       bootstrap,
		starter:         starter,
		devicePath:      PathDevBlock,
		secondaryBootfs: func() bool { return false },
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *FsHost) launchBlobfs(ctx context.Context, argv []string) error {
	return h.procs.Launch(ctx, "blobfs:/blob", argv)
}

func (h *FsHost) launchMinfs(ctx context.Context, argv []string) error {
	return h.procs.Launch(ctx, "minfs:/data", argv)
}

func (h *FsHost) launchFAT(ctx context.Context, argv []string) error {
	return h.procs.Launch(ctx, "fatfs:/volume", argv)
}
