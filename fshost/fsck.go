// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fshost

import (
	"context"

	"go.uber.org/zap"

	"github.com/siderolabs/go-fshost/bootargs"
	"github.com/siderolabs/go-fshost/format"
)

// fsckBinaries maps formats to their offline checker binaries.
var fsckBinaries = map[format.Format]string{
	format.Blobfs: "/boot/bin/blobfs",
	format.Minfs:  "/boot/bin/minfs",
}

// check conditionally runs the offline consistency check against the device.
//
// The check is skipped unless enabled by boot configuration. The wait for the
// checker process has no bound: a hung checker stalls all further device
// processing. A failed check suppresses the mount of this device only; boot
// continues.
func (h *FsHost) check(ctx context.Context, dev Device, df format.Format) error {
	if !h.args.Bool(bootargs.FilesystemCheck, false) {
		return nil
	}

	binary, ok := fsckBinaries[df]
	if !ok {
		return nil
	}

	h.logger.Info("fsck started", zap.Stringer("format", df), zap.String("device", dev.Path()))

	if err := h.fsck.Check(ctx, binary, dev.Path()); err != nil {
		h.logger.Error("fsck failure! please report the corrupt device, preferably before reformatting it",
			zap.String("device", dev.Path()),
			zap.Stringer("format", df),
			zap.Error(err))

		return err
	}

	h.logger.Info("fsck completed OK", zap.Stringer("format", df))

	return nil
}
