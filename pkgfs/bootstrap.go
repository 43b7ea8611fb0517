// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pkgfs

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siderolabs/go-fshost/bootargs"
)

// Bootstrap launches the package filesystem and publishes its namespace.
//
// The primary resolver-driven path is tried first; the legacy single-binary
// path is the fallback. Both are best-effort: on failure the system proceeds
// without a system root.
func (b *Bootstrapper) Bootstrap(ctx context.Context) {
	if !b.launch(ctx) {
		b.legacyBlobInit(ctx)
	}
}

func (b *Bootstrapper) launch(ctx context.Context) bool {
	cmdline, ok := b.args.Get(bootargs.PkgfsCmd)
	if !ok {
		return false
	}

	dir, err := OpenBlobRoot(b.blobRoot)
	if err != nil {
		b.logger.Error("failed to open blob root", zap.String("path", b.blobRoot), zap.Error(err))

		return false
	}

	res := NewResolver(NewManifest(b.args), dir)

	proc, root, err := b.launcher.Launch(ctx, strings.Fields(cmdline), res)
	if err != nil {
		res.Close() //nolint:errcheck

		b.logger.Error("failed to launch pkgfs", zap.String("cmd", cmdline), zap.Error(err))

		return false
	}

	b.finish(proc, root)

	return true
}

// legacyBlobInit is the older single-binary bootstrap: the binary named by
// the boot configuration is loaded directly out of the blob volume, without a
// general resolver-driven launch.
func (b *Bootstrapper) legacyBlobInit(ctx context.Context) {
	blobInit, ok := b.args.Get(bootargs.BlobInit)
	if !ok {
		return
	}

	if b.secondaryBootfs() {
		b.logger.Info(bootargs.BlobInit + " ignored due to secondary bootfs")

		return
	}

	var args []string

	if arg, ok := b.args.Get(bootargs.BlobInitArg); ok {
		args = append(args, arg)
	}

	proc, root, err := b.launcher.LaunchFile(ctx, "/fs"+blobInit, args)
	if err != nil {
		b.logger.Error("failed to launch blob-init", zap.String("binary", blobInit), zap.Error(err))

		return
	}

	b.finish(proc, root)
}

// finish waits for the launched process to come up and publishes its
// namespace: first the package filesystem root, then the system sub-view
// re-derived from it, then dependent service startup.
func (b *Bootstrapper) finish(proc Process, root Dir) {
	defer root.Close() //nolint:errcheck

	timer := time.NewTimer(b.readyTimeout)
	defer timer.Stop()

	select {
	case <-proc.Ready():
	case <-proc.Done():
		// the process may terminate right after signaling readiness; the
		// ready signal takes priority over termination
		select {
		case <-proc.Ready():
		default:
			b.logger.Error("pkgfs terminated prematurely")

			return
		}
	case <-timer.C:
		b.logger.Error("pkgfs did not signal completion", zap.Duration("timeout", b.readyTimeout))

		return
	}

	if err := b.installer.Install(PkgfsPath, root); err != nil {
		b.logger.Error("failed to install pkgfs root", zap.String("path", PkgfsPath), zap.Error(err))

		return
	}

	system, err := root.OpenDir(systemView)
	if err != nil {
		b.logger.Error("failed to open system view", zap.Error(err))

		return
	}

	defer system.Close() //nolint:errcheck

	if err := b.installer.Install(SystemPath, system); err != nil {
		b.logger.Error("failed to install system view", zap.String("path", SystemPath), zap.Error(err))

		return
	}

	b.starter.Start()
}
