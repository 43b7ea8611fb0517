// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package partition classifies GPT partition type GUIDs into the semantic
// roles the mount pipeline acts on.
package partition

import "github.com/google/uuid"

// Partition type GUIDs recognized by the mount pipeline.
var (
	SystemGUID  = uuid.MustParse("606B000B-B7C7-4653-A7D5-B737332C899D")
	DataGUID    = uuid.MustParse("08185F0C-892D-428A-A789-DBEEC8F55E6A")
	InstallGUID = uuid.MustParse("48435546-4953-2041-494E-5354414C4C52")
	BlobGUID    = uuid.MustParse("2967380E-134C-4CBB-B6DA-17E7CE1CA45D")
	EFIGUID     = uuid.MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")
)

// Role is the semantic purpose of a partition.
//
// RoleEFI exists only to suppress auto-mounting of EFI system partitions; it
// never produces a mount of its own.
type Role int

// Roles, derived from the partition type GUID.
const (
	RoleUnknown Role = iota
	RoleSystem
	RoleData
	RoleInstall
	RoleBlob
	RoleEFI
)

func (r Role) String() string {
	switch r {
	case RoleSystem:
		return "system"
	case RoleData:
		return "data"
	case RoleInstall:
		return "install"
	case RoleBlob:
		return "blob"
	case RoleEFI:
		return "efi"
	case RoleUnknown:
		fallthrough
	default:
		return "unknown"
	}
}

// RoleOf maps a partition type GUID to its role.
func RoleOf(guid uuid.UUID) Role {
	switch guid {
	case SystemGUID:
		return RoleSystem
	case DataGUID:
		return RoleData
	case InstallGUID:
		return RoleInstall
	case BlobGUID:
		return RoleBlob
	case EFIGUID:
		return RoleEFI
	default:
		return RoleUnknown
	}
}
