// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fshost

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/siderolabs/go-fshost/block"
	"github.com/siderolabs/go-fshost/bootargs"
	"github.com/siderolabs/go-fshost/format"
	"github.com/siderolabs/go-fshost/partition"
)

// Control-flow results of the role state machine; none of them is surfaced as
// a failure to the watcher.
var (
	// errAlreadyBound: the role's singleton slot is taken (or an alternate
	// mechanism already serves it); the device is skipped.
	errAlreadyBound = errors.New("role already bound")
	// errPolicyRejected: the device is acceptable but boot policy forbids
	// mounting it.
	errPolicyRejected = errors.New("rejected by boot policy")
)

// Process classifies one device and drives it through the pipeline.
//
// The device handle is closed on every exit path. Processing failures are
// absorbed: the watcher keeps going no matter what happened to an individual
// device.
func (h *FsHost) Process(ctx context.Context, dev Device) {
	defer dev.Close() //nolint:errcheck

	logger := h.logger.With(zap.String("device", dev.Path()))

	if h.netboot {
		h.processNetboot(ctx, dev, logger)

		return
	}

	// boot partitions are special-cased ahead of format detection
	if flags, err := dev.Flags(); err == nil && flags&block.FlagBootPartition != 0 {
		if err := h.binder.Bind(dev, DriverBootpart); err != nil {
			logger.Error("failed to bind bootpart driver", zap.Error(err))
		}

		return
	}

	df, err := format.Detect(dev)
	if err != nil {
		logger.Debug("format detection failed", zap.Error(err))

		df = format.Unknown
	}

	if df.IsContainer() {
		logger.Info("binding container driver", zap.Stringer("format", df))

		if err := h.binder.Bind(dev, containerDriver(df)); err != nil {
			logger.Error("failed to bind container driver", zap.Stringer("format", df), zap.Error(err))
		}

		return
	}

	switch df { //nolint:exhaustive
	case format.Blobfs:
		h.processBlob(ctx, dev, logger)
	case format.Minfs:
		logger.Info("mounting minfs")

		if h.check(ctx, dev, df) != nil {
			return
		}

		opts := DefaultMountOptions()
		opts.WaitUntilReady = false

		if err := h.mountRole(ctx, dev, opts, logger); err != nil {
			logger.Debug("minfs partition not mounted", zap.Error(err))
		}
	case format.FAT:
		h.processFAT(ctx, dev, logger)
	default:
	}
}

// processNetboot handles a device in network boot mode: only the install
// partition is eligible for mounting (without blocking on readiness), and
// every other device is left completely untouched.
func (h *FsHost) processNetboot(ctx context.Context, dev Device, logger *zap.Logger) {
	guid, ok := dev.TypeGUID()
	if !ok || guid != partition.InstallGUID {
		return
	}

	logger.Info("mounting install partition")

	if err := h.mountInstall(ctx, dev, false, logger); err != nil {
		logger.Debug("install partition not mounted", zap.Error(err))
	}
}

// mountRole drives the singleton-role state machine for a minfs device.
//
// Absence of a role is a no-op, not a failure.
func (h *FsHost) mountRole(ctx context.Context, dev Device, opts MountOptions, logger *zap.Logger) error {
	guid, ok := dev.TypeGUID()
	if !ok {
		return nil
	}

	switch partition.RoleOf(guid) { //nolint:exhaustive
	case partition.RoleSystem:
		return h.mountSystem(ctx, dev, logger)
	case partition.RoleData:
		return h.mountData(ctx, dev, opts, logger)
	case partition.RoleInstall:
		return h.mountInstall(ctx, dev, true, logger)
	default:
		return nil
	}
}

func (h *FsHost) mountSystem(ctx context.Context, dev Device, logger *zap.Logger) error {
	if h.state.systemMounted || h.secondaryBootfs() {
		return errAlreadyBound
	}

	// the legacy direct blob-init boot wins by skipping this path entirely
	if h.args.Has(bootargs.BlobInit) {
		logger.Info("system partition ignored due to " + bootargs.BlobInit)

		return errAlreadyBound
	}

	switch volume, _ := h.args.Get(bootargs.SystemVolume); volume {
	case "any":
	case "local":
		flags, err := dev.Flags()
		if err != nil || flags&block.FlagRemovable != 0 {
			return errPolicyRejected
		}
	default:
		return errPolicyRejected
	}

	opts := MountOptions{
		ReadOnly:       !h.args.Has(bootargs.SystemWritable),
		WaitUntilReady: true,
	}

	h.state.systemMounted = true

	if err := h.mounter.Mount(ctx, dev, PathSystem, format.Minfs, opts, h.launchMinfs); err != nil {
		logger.Error("failed to mount system partition", zap.String("target", PathSystem), zap.Error(err))

		return err
	}

	// a real filesystem serves the system root, no bootstrap indirection
	h.starter.Start()

	return nil
}

func (h *FsHost) mountData(ctx context.Context, dev Device, opts MountOptions, logger *zap.Logger) error {
	if h.state.dataMounted {
		return errAlreadyBound
	}

	// the latch is set before the attempt: a failed mount forfeits the slot
	// for the rest of the boot
	h.state.dataMounted = true

	opts.WaitUntilReady = true

	if err := h.mounter.Mount(ctx, dev, PathData, format.Minfs, opts, h.launchMinfs); err != nil {
		logger.Error("failed to mount data partition", zap.String("target", PathData), zap.Error(err))

		return err
	}

	return nil
}

func (h *FsHost) mountInstall(ctx context.Context, dev Device, waitUntilReady bool, logger *zap.Logger) error {
	if h.state.installMounted {
		return errAlreadyBound
	}

	h.state.installMounted = true

	opts := MountOptions{
		ReadOnly:       true,
		WaitUntilReady: waitUntilReady,
	}

	if err := h.mounter.Mount(ctx, dev, PathInstall, format.Minfs, opts, h.launchMinfs); err != nil {
		logger.Error("failed to mount install partition", zap.String("target", PathInstall), zap.Error(err))

		return err
	}

	return nil
}

func (h *FsHost) processBlob(ctx context.Context, dev Device, logger *zap.Logger) {
	guid, ok := dev.TypeGUID()
	if !ok || guid != partition.BlobGUID {
		return
	}

	if h.check(ctx, dev, format.Blobfs) != nil {
		return
	}

	if h.state.blobMounted {
		return
	}

	if err := h.mounter.Mount(ctx, dev, PathBlob, format.Blobfs, DefaultMountOptions(), h.launchBlobfs); err != nil {
		logger.Error("failed to mount blobfs partition", zap.String("target", PathBlob), zap.Error(err))

		return
	}

	// the latch is set only after success so a later blob device can still
	// bring up the package filesystem
	h.state.blobMounted = true

	h.bootstrap.Bootstrap(ctx)
}

func (h *FsHost) processFAT(ctx context.Context, dev Device, logger *zap.Logger) {
	// the GUID distinguishes EFI system partitions, which are never
	// auto-mounted
	if guid, ok := dev.TypeGUID(); ok && guid == partition.EFIGUID {
		logger.Info("not automounting EFI system partition")

		return
	}

	target := fmt.Sprintf("%s/fat-%d", PathVolume, h.state.fatCounter)
	h.state.fatCounter++

	logger.Info("mounting fatfs", zap.String("target", target))

	opts := MountOptions{CreateMountpoint: true}

	if err := h.mounter.Mount(ctx, dev, target, format.FAT, opts, h.launchFAT); err != nil {
		logger.Error("failed to mount fatfs volume", zap.String("target", target), zap.Error(err))
	}
}

func containerDriver(df format.Format) string {
	switch df { //nolint:exhaustive
	case format.GPT:
		return DriverGPT
	case format.MBR:
		return DriverMBR
	case format.FVM:
		return DriverFVM
	case format.Zxcrypt:
		return DriverZxcrypt
	default:
		panic("not a container format")
	}
}
