// Package parttype resolves raw partition type codes to display labels.
package parttype

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Table formats as reported by the device service
const (
	GPT = "gpt"
	DOS = "dos"
)

var gptTypes = map[string]string{
	"c12a7328-f81f-11d2-ba4b-00a0c93ec93b": "EFI System",
	"21686148-6449-6e6f-744e-656564454649": "BIOS Boot",
	"0fc63daf-8483-4772-8e79-3d69d8477de4": "Linux Filesystem",
	"0657fd6d-a4ab-43c4-84e5-0933c84b4f4f": "Linux Swap",
	"e6d6d379-f507-44c2-a23c-238f2a3df928": "Linux LVM",
	"a19d880f-05fc-4d3b-a006-743f0f84911e": "Linux RAID",
	"933ac7e1-2eb4-4f13-b844-0e14e2aef915": "Linux Home",
	"44479540-f297-41b2-9af7-d131d5f0458a": "Linux Root (x86)",
	"4f68bce3-e8cd-4db1-96e7-fbcaf984b709": "Linux Root (x86-64)",
	"b921b045-1df0-41c3-af44-4c6f280d3fae": "Linux Root (ARM-64)",
	"ca7d7ccb-63ed-4c53-861c-1742536059cc": "LUKS",
	"ebd0a0a2-b9e5-4433-87c0-68b6b72699c7": "Basic Data",
	"e3c9e316-0b5c-4db8-817d-f92df00215ae": "Microsoft Reserved",
	"de94bba4-06d1-4d40-a16a-bfd50179d6ac": "Windows Recovery Environment",
	"48465300-0000-11aa-aa11-00306543ecac": "Apple HFS/HFS+",
	"7c3457ef-0000-11aa-aa11-00306543ecac": "Apple APFS",
	"516e7cb6-6ecf-11d6-8ff8-00022d09712b": "FreeBSD UFS",
	"516e7cb5-6ecf-11d6-8ff8-00022d09712b": "FreeBSD Swap",
}

var dosTypes = map[string]string{
	"0x00": "Empty",
	"0x01": "FAT12",
	"0x04": "FAT16 <32M",
	"0x05": "Extended",
	"0x06": "FAT16",
	"0x07": "HPFS/NTFS/exFAT",
	"0x0b": "W95 FAT32",
	"0x0c": "W95 FAT32 (LBA)",
	"0x0e": "W95 FAT16 (LBA)",
	"0x0f": "W95 Extended (LBA)",
	"0x82": "Linux Swap",
	"0x83": "Linux",
	"0x85": "Linux Extended",
	"0x8e": "Linux LVM",
	"0xa5": "FreeBSD",
	"0xaf": "HFS/HFS+",
	"0xee": "GPT Protective",
	"0xef": "EFI System",
	"0xfd": "Linux RAID Autodetect",
}

// Label returns a human readable name for code within the given table
// format. Unknown pairs fall back to the raw code.
func Label(tableType, code string) string {
	switch strings.ToLower(tableType) {
	case GPT:
		if key, ok := canonicalGUID(code); ok {
			if label, ok := gptTypes[key]; ok {
				return label
			}
		}
	case DOS:
		if key, ok := canonicalDOS(code); ok {
			if label, ok := dosTypes[key]; ok {
				return label
			}
		}
	}
	return code
}

func canonicalGUID(code string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(code))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func canonicalDOS(code string) (string, bool) {
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(code)), "0x")
	n, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("0x%02x", n), true
}

// Creatable is a filesystem that can be created inside a new partition
type Creatable struct {
	Name       string `json:"name"`
	Filesystem string `json:"filesystem"`
	GPTType    string `json:"gpt_type"`
	DOSType    string `json:"dos_type"`
}

// TypeFor returns the partition type code to use for table
func (c Creatable) TypeFor(tableType string) string {
	if strings.EqualFold(tableType, DOS) {
		return c.DOSType
	}
	return c.GPTType
}

// CommonTypes are offered when creating a partition, in display order
var CommonTypes = []Creatable{
	{Name: "Linux ext4", Filesystem: "ext4", GPTType: "0fc63daf-8483-4772-8e79-3d69d8477de4", DOSType: "0x83"},
	{Name: "XFS", Filesystem: "xfs", GPTType: "0fc63daf-8483-4772-8e79-3d69d8477de4", DOSType: "0x83"},
	{Name: "Btrfs", Filesystem: "btrfs", GPTType: "0fc63daf-8483-4772-8e79-3d69d8477de4", DOSType: "0x83"},
	{Name: "FAT32", Filesystem: "vfat", GPTType: "ebd0a0a2-b9e5-4433-87c0-68b6b72699c7", DOSType: "0x0c"},
	{Name: "NTFS", Filesystem: "ntfs", GPTType: "ebd0a0a2-b9e5-4433-87c0-68b6b72699c7", DOSType: "0x07"},
	{Name: "exFAT", Filesystem: "exfat", GPTType: "ebd0a0a2-b9e5-4433-87c0-68b6b72699c7", DOSType: "0x07"},
	{Name: "Linux Swap", Filesystem: "swap", GPTType: "0657fd6d-a4ab-43c4-84e5-0933c84b4f4f", DOSType: "0x82"},
}
