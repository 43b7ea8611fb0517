// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fshost

import (
	"context"
	"errors"
	"fmt"

	"github.com/siderolabs/go-cmd/pkg/cmd"
)

// ExecLauncher runs filesystem servers and consistency checkers as child
// processes. It is the default ProcessLauncher and CheckLauncher.
type ExecLauncher struct{}

// Launch runs argv to completion.
func (ExecLauncher) Launch(ctx context.Context, name string, argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command line")
	}

	if _, err := cmd.RunContext(ctx, argv[0], argv[1:]...); err != nil {
		return fmt.Errorf("failed to run %s: %w", name, err)
	}

	return nil
}

// Check runs the checker binary against the device and blocks until it
// terminates; a non-zero exit is a check failure.
func (ExecLauncher) Check(ctx context.Context, binary, devicePath string) error {
	if _, err := cmd.RunContext(ctx, binary, "fsck", devicePath); err != nil {
		return fmt.Errorf("fsck of %s: %w", devicePath, err)
	}

	return nil
}
