// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package partition_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/siderolabs/go-fshost/partition"
)

func TestRoleOf(t *testing.T) {
	for _, test := range []struct {
		name     string
		guid     uuid.UUID
		expected partition.Role
	}{
		{"system", partition.SystemGUID, partition.RoleSystem},
		{"data", partition.DataGUID, partition.RoleData},
		{"install", partition.InstallGUID, partition.RoleInstall},
		{"blob", partition.BlobGUID, partition.RoleBlob},
		{"efi", partition.EFIGUID, partition.RoleEFI},
		{"zero", uuid.UUID{}, partition.RoleUnknown},
		{"random", uuid.MustParse("f79c3cbd-4c26-4b4f-8f5a-3a1cbf56c1fc"), partition.RoleUnknown},
	} {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, partition.RoleOf(test.guid))
		})
	}
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "system", partition.RoleSystem.String())
	assert.Equal(t, "blob", partition.RoleBlob.String())
	assert.Equal(t, "unknown", partition.RoleUnknown.String())
	assert.Equal(t, "unknown", partition.Role(42).String())
}
