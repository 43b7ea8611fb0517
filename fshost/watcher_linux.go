// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package fshost

import (
	"context"
	"os"
	"path/filepath"

	"github.com/siderolabs/go-fshost/block"
	"github.com/siderolabs/go-fshost/watch"
)

// Run consumes device arrival events until the context is canceled.
//
// Events are delivered serially on this goroutine; blocking operations
// inside event handling (mount readiness, fsck, pkgfs readiness) stall the
// pipeline for their duration. Devices are processed in arrival order, and
// that is the only ordering guarantee.
func (h *FsHost) Run(ctx context.Context) error {
	return watch.Directory(ctx, h.devicePath, func(_ *os.File, event watch.Event, name string) error {
		h.DeviceAdded(ctx, event, name)

		// processing errors never abort the watch
		return nil
	})
}

// DeviceAdded handles a single device arrival event.
func (h *FsHost) DeviceAdded(ctx context.Context, event watch.Event, name string) {
	if event != watch.Added {
		return
	}

	dev, err := block.NewFromPath(filepath.Join(h.devicePath, name))
	if err != nil {
		return
	}

	h.Process(ctx, dev)
}
