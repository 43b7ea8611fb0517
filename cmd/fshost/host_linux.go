// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/siderolabs/go-cmd/pkg/cmd"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/siderolabs/go-fshost/format"
	"github.com/siderolabs/go-fshost/fshost"
	"github.com/siderolabs/go-fshost/pkgfs"
)

// serverBinaries maps formats to their filesystem server binaries.
var serverBinaries = map[format.Format]string{
	format.Blobfs: "/boot/bin/blobfs",
	format.Minfs:  "/boot/bin/minfs",
	format.FAT:    "/boot/bin/fatfs",
}

// execMounter mounts a filesystem by running its server binary.
type execMounter struct{}

func (execMounter) Mount(ctx context.Context, dev fshost.Device, target string, fs format.Format, opts fshost.MountOptions, launch fshost.LaunchFunc) error {
	binary, ok := serverBinaries[fs]
	if !ok {
		return fmt.Errorf("no filesystem server for %s", fs)
	}

	if opts.CreateMountpoint {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
	}

	argv := []string{binary}

	if opts.ReadOnly {
		argv = append(argv, "--readonly")
	}

	if !opts.WaitUntilReady {
		argv = append(argv, "--background")
	}

	argv = append(argv, "mount", dev.Path(), target)

	return launch(ctx, argv)
}

// execBinder hands container and boot-partition devices to the driver
// management helper.
type execBinder struct{}

func (execBinder) Bind(dev fshost.Device, driver string) error {
	if _, err := cmd.Run("/boot/bin/driverctl", "bind", driver, dev.Path()); err != nil {
		return fmt.Errorf("failed to bind %s to %s: %w", driver, dev.Path(), err)
	}

	return nil
}

// process tracks a launched filesystem server.
type process struct {
	ready chan struct{}
	done  chan struct{}
}

func (p *process) Ready() <-chan struct{} { return p.ready }

func (p *process) Done() <-chan struct{} { return p.done }

// nsDir is a directory of the local namespace.
type nsDir struct {
	path string
}

func (d *nsDir) OpenDir(name string) (pkgfs.Dir, error) {
	sub := filepath.Join(d.path, name)

	if _, err := os.Stat(sub); err != nil {
		return nil, err
	}

	return &nsDir{path: sub}, nil
}

func (d *nsDir) Close() error { return nil }

// processLauncher starts the package filesystem server.
//
// The server inherits the write end of the readiness pipe as fd 3 and writes
// a single byte to it once it is serving; its root directory appears under
// serveRoot.
type processLauncher struct {
	logger    *zap.Logger
	serveRoot string
}

func (l *processLauncher) Launch(ctx context.Context, argv []string, res pkgfs.BlobResolver) (pkgfs.Process, pkgfs.Dir, error) {
	if len(argv) == 0 {
		return nil, nil, errors.New("empty command line")
	}

	// the binary itself lives in a blob: the resolver is the only thing able
	// to find it before the package filesystem is up
	blob, err := res.ResolveAbsolute(argv[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve %s: %w", argv[0], err)
	}

	binary, err := stageBinary(blob)
	if err != nil {
		return nil, nil, err
	}

	proc, dir, err := l.launch(ctx, binary, argv[1:], res)
	if err != nil {
		os.Remove(binary) //nolint:errcheck

		return nil, nil, err
	}

	return proc, dir, nil
}

func (l *processLauncher) LaunchFile(ctx context.Context, path string, args []string) (pkgfs.Process, pkgfs.Dir, error) {
	return l.launch(ctx, path, args, nil)
}

func (l *processLauncher) launch(ctx context.Context, binary string, args []string, res pkgfs.BlobResolver) (pkgfs.Process, pkgfs.Dir, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}

	c := exec.CommandContext(ctx, binary, args...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.ExtraFiles = []*os.File{w}
	c.Env = append(os.Environ(), "PKGFS_ROOT="+l.serveRoot)

	if err := c.Start(); err != nil {
		r.Close() //nolint:errcheck
		w.Close() //nolint:errcheck

		return nil, nil, fmt.Errorf("failed to start %s: %w", binary, err)
	}

	w.Close() //nolint:errcheck

	proc := &process{
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}

	go func() {
		defer r.Close() //nolint:errcheck

		buf := make([]byte, 1)

		if n, _ := r.Read(buf); n > 0 {
			close(proc.ready)
		}
	}()

	go func() {
		if err := c.Wait(); err != nil {
			l.logger.Error("filesystem server exited", zap.String("binary", binary), zap.Error(err))
		}

		if res != nil {
			res.Close() //nolint:errcheck
		}

		close(proc.done)
	}()

	return proc, &nsDir{path: l.serveRoot}, nil
}

// stageBinary copies blob contents to an executable file, since the blob
// volume is mounted without execute permission.
func stageBinary(blob *os.File) (string, error) {
	defer blob.Close() //nolint:errcheck

	staged, err := os.CreateTemp("", "pkgsvr-*")
	if err != nil {
		return "", err
	}

	defer staged.Close() //nolint:errcheck

	if _, err := io.Copy(staged, blob); err != nil {
		os.Remove(staged.Name()) //nolint:errcheck

		return "", err
	}

	if err := staged.Chmod(0o755); err != nil {
		os.Remove(staged.Name()) //nolint:errcheck

		return "", err
	}

	return staged.Name(), nil
}

// bindInstaller publishes directories by bind-mounting them at their
// namespace paths.
type bindInstaller struct{}

func (bindInstaller) Install(path string, dir pkgfs.Dir) error {
	d, ok := dir.(*nsDir)
	if !ok {
		return fmt.Errorf("cannot install foreign directory at %s", path)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}

	if err := unix.Mount(d.path, path, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("failed to bind %s at %s: %w", d.path, path, err)
	}

	return nil
}

// markerStarter unblocks dependent services by creating a marker file they
// wait on.
type markerStarter struct {
	logger *zap.Logger
	path   string
}

func (s *markerStarter) Start() {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logger.Error("failed to create marker directory", zap.Error(err))

		return
	}

	f, err := os.Create(s.path)
	if err != nil {
		s.logger.Error("failed to create readiness marker", zap.Error(err))

		return
	}

	f.Close() //nolint:errcheck

	s.logger.Info("system root ready", zap.String("marker", s.path))
}
