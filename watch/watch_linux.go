// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

// Package watch delivers directory entry arrival events, serially, to a
// callback.
package watch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Event is the kind of a directory event.
type Event int

// Event kinds.
const (
	Added Event = iota
	Removed
)

// Func handles a single directory event.
//
// A non-nil error stops the watch; processing failures that should not stop
// it are the callback's to absorb.
type Func func(dir *os.File, event Event, name string) error

const pollTimeoutMs = 250

// Directory watches the directory at path, invoking fn for every entry.
//
// Entries present when the watch starts are replayed as Added before new
// events are delivered. The callback runs on the calling goroutine, so events
// are strictly serialized: a blocking callback stalls all further delivery.
func Directory(ctx context.Context, path string, fn Func) error {
	dir, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open watch directory: %w", err)
	}

	defer dir.Close() //nolint:errcheck

	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return fmt.Errorf("failed to initialize inotify: %w", err)
	}

	defer unix.Close(fd) //nolint:errcheck

	if _, err = unix.InotifyAddWatch(fd, path, unix.IN_CREATE|unix.IN_MOVED_TO|unix.IN_DELETE|unix.IN_MOVED_FROM); err != nil {
		return fmt.Errorf("failed to add inotify watch: %w", err)
	}

	// the watch is registered before the replay, so entries appearing during
	// the replay are not lost (they may be delivered twice)
	names, err := dir.Readdirnames(-1)
	if err != nil {
		return fmt.Errorf("failed to list watch directory: %w", err)
	}

	for _, name := range names {
		if err = fn(dir, Added, name); err != nil {
			return err
		}
	}

	buf := make([]byte, 4096)
	pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}

	for {
		if err = ctx.Err(); err != nil {
			return err
		}

		n, err := unix.Poll(pollFds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}

			return fmt.Errorf("failed to poll inotify: %w", err)
		}

		if n == 0 {
			continue
		}

		n, err = unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}

			return fmt.Errorf("failed to read inotify events: %w", err)
		}

		if err = dispatch(dir, buf[:n], fn); err != nil {
			return err
		}
	}
}

func dispatch(dir *os.File, buf []byte, fn Func) error {
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buf); {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))

		nameBuf := buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+int(raw.Len)]
		name := string(bytes.TrimRight(nameBuf, "\x00"))

		offset += unix.SizeofInotifyEvent + int(raw.Len)

		var event Event

		switch {
		case raw.Mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0:
			event = Added
		case raw.Mask&(unix.IN_DELETE|unix.IN_MOVED_FROM) != 0:
			event = Removed
		default:
			continue
		}

		if err := fn(dir, event, name); err != nil {
			return err
		}
	}

	return nil
}
