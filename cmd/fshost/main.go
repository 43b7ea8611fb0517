// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

// Command fshost watches for block devices and brings up the boot-time
// filesystem topology.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/siderolabs/go-fshost/bootargs"
	"github.com/siderolabs/go-fshost/fshost"
	"github.com/siderolabs/go-fshost/pkgfs"
)

func main() {
	netboot := flag.Bool("netboot", false, "Restrict mounting to the install partition")
	devices := flag.String("devices", fshost.PathDevBlock, "Block device directory to watch")
	serveRoot := flag.String("pkgfs-root", "/pkgfs-boot", "Staging path where the package filesystem serves its root")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %s", err)
	}

	defer logger.Sync() //nolint:errcheck

	args := bootargs.FromProc()

	starter := &markerStarter{logger: logger, path: "/run/fshost/system-ready"}
	launcher := &processLauncher{logger: logger, serveRoot: *serveRoot}

	boot := pkgfs.New(args, launcher, bindInstaller{}, starter, pkgfs.WithLogger(logger))

	host := fshost.New(args, execMounter{}, execBinder{}, boot, starter,
		fshost.WithLogger(logger),
		fshost.WithNetboot(*netboot || args.Bool(bootargs.Netboot, false)),
		fshost.WithDevicePath(*devices),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	logger.Info("watching for block devices", zap.String("path", *devices))

	if err := host.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Watcher failed: %s", err)
	}
}
