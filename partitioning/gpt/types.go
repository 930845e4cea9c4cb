// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gpt

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Well-known partition type GUIDs.
var (
	TypeEFISystem     = uuid.MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")
	TypeBIOSBoot      = uuid.MustParse("21686148-6449-6E6F-744E-656564454649")
	TypeLinuxData     = uuid.MustParse("0FC63DAF-8483-4772-8E79-3D69D8477DE4")
	TypeLinuxSwap     = uuid.MustParse("0657FD6D-A4AB-43C4-84E5-0933C84B4F4F")
	TypeLinuxLVM      = uuid.MustParse("E6D6D379-F507-44C2-A23C-238F2A3DF928")
	TypeLinuxRAID     = uuid.MustParse("A19D880F-05FC-4D3B-A006-743F0F84911E")
	TypeMicrosoftData = uuid.MustParse("EBD0A0A2-B9E5-4433-87C0-68B6B72699C7")
)

var typeAliases = map[string]uuid.UUID{
	"efi":    TypeEFISystem,
	"esp":    TypeEFISystem,
	"bios":   TypeBIOSBoot,
	"linux":  TypeLinuxData,
	"swap":   TypeLinuxSwap,
	"lvm":    TypeLinuxLVM,
	"raid":   TypeLinuxRAID,
	"msdata": TypeMicrosoftData,
}

// ParseType resolves a partition type alias (like "linux" or "efi") or a literal GUID.
func ParseType(s string) (uuid.UUID, error) {
	if typ, ok := typeAliases[strings.ToLower(s)]; ok {
		return typ, nil
	}

	typ, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("unknown partition type %q", s)
	}

	return typ, nil
}
