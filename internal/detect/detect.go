// Package detect identifies the filesystem family present on a device from
// its leading bytes, in the fixed priority order the recovery engine
// depends on: ext, then NTFS, then the FAT family, then the remaining
// recognized-but-unsupported types reported for diagnostic purposes only.
package detect

import (
	"encoding/binary"

	"github.com/shubham/filerecovery/internal/types"
)

// Result is the detector's verdict on one device's leading bytes.
type Result struct {
	Type            types.FileSystemType
	Name            string
	ClusterSize     uint32
	TotalSize       uint64
	UsedSize        uint64 // 0 when unknown
	BootSectorOffset uint64
	VolumeLabel     string
	Valid           bool
}

const minHeadBytes = 8192

// Detect inspects head, the first 8 KiB or more of a device, and reports the
// filesystem family it believes is present. An unrecognized head is
// reported as FSUnknown with Valid=false; this is not an error, the caller
// simply has no metadata parser to run.
func Detect(head []byte) Result {
	if len(head) < minHeadBytes {
		return Result{Type: types.FSUnknown, Name: "unknown"}
	}

	if r, ok := detectExt(head); ok {
		return r
	}
	if r, ok := detectNTFS(head); ok {
		return r
	}
	if r, ok := detectFAT(head); ok {
		return r
	}
	if r, ok := detectOther(head); ok {
		return r
	}
	return Result{Type: types.FSUnknown, Name: "unknown"}
}

func detectExt(head []byte) (Result, bool) {
	const sbOffset = 1024
	if len(head) < sbOffset+0x3A {
		return Result{}, false
	}
	magic := binary.LittleEndian.Uint16(head[sbOffset+0x38 : sbOffset+0x3A])
	if magic != 0xEF53 {
		return Result{}, false
	}

	logBlockSize := binary.LittleEndian.Uint32(head[sbOffset+0x18 : sbOffset+0x1C])
	clusterSize := uint32(1024) << logBlockSize
	blocksCount := binary.LittleEndian.Uint32(head[sbOffset+0x04 : sbOffset+0x08])
	freeBlocks := binary.LittleEndian.Uint32(head[sbOffset+0x0C : sbOffset+0x10])
	incompat := binary.LittleEndian.Uint32(head[sbOffset+0x60 : sbOffset+0x64])
	compat := binary.LittleEndian.Uint32(head[sbOffset+0x5C : sbOffset+0x60])

	fsType := types.FSExt2
	name := "ext2"
	switch {
	case incompat&0x0040 != 0:
		fsType, name = types.FSExt4, "ext4"
	case compat&0x0004 != 0:
		fsType, name = types.FSExt3, "ext3"
	}

	var label string
	if sbOffset+0x88 <= len(head) {
		label = trimNull(head[sbOffset+0x78 : sbOffset+0x88])
	}

	return Result{
		Type:            fsType,
		Name:            name,
		ClusterSize:     clusterSize,
		TotalSize:       uint64(blocksCount) * uint64(clusterSize),
		UsedSize:        uint64(blocksCount-freeBlocks) * uint64(clusterSize),
		BootSectorOffset: sbOffset,
		VolumeLabel:     label,
		Valid:           true,
	}, true
}

func detectNTFS(head []byte) (Result, bool) {
	if len(head) < 0x40 || string(head[3:11]) != "NTFS    " {
		return Result{}, false
	}
	bytesPerSector := binary.LittleEndian.Uint16(head[0x0B:0x0D])
	sectorsPerCluster := uint32(head[0x0D])
	clusterSize := uint32(bytesPerSector) * sectorsPerCluster
	totalSectors := binary.LittleEndian.Uint64(head[0x28:0x30])

	return Result{
		Type:            types.FSNTFS,
		Name:            "NTFS",
		ClusterSize:     clusterSize,
		TotalSize:       totalSectors * uint64(bytesPerSector),
		BootSectorOffset: 0,
		Valid:           clusterSize > 0,
	}, true
}

// detectFAT covers the FAT12/16/32 and exFAT family. exFAT is tagged at
// offset 3; absent that, the boot signature at offset 510 gates FAT12/16/32,
// and the computed cluster count alone distinguishes FAT32 from FAT12/16.
func detectFAT(head []byte) (Result, bool) {
	if len(head) < 512 {
		return Result{}, false
	}
	if string(head[3:11]) == "EXFAT   " {
		return Result{Type: types.FSExFAT, Name: "exFAT", BootSectorOffset: 0, Valid: true}, true
	}
	if head[510] != 0x55 || head[511] != 0xAA {
		return Result{}, false
	}

	bytesPerSector := binary.LittleEndian.Uint16(head[0x0B:0x0D])
	sectorsPerCluster := uint32(head[0x0D])
	reservedSectors := binary.LittleEndian.Uint16(head[0x0E:0x10])
	numFATs := uint32(head[0x10])
	rootEntries := binary.LittleEndian.Uint16(head[0x11:0x13])
	totalSectors16 := binary.LittleEndian.Uint16(head[0x13:0x15])
	sectorsPerFAT16 := binary.LittleEndian.Uint16(head[0x16:0x18])
	totalSectors32 := binary.LittleEndian.Uint32(head[0x20:0x24])
	sectorsPerFAT32 := binary.LittleEndian.Uint32(head[0x24:0x28])

	if bytesPerSector == 0 || sectorsPerCluster == 0 {
		return Result{}, false
	}
	clusterSize := uint32(bytesPerSector) * sectorsPerCluster

	sectorsPerFAT := uint64(sectorsPerFAT16)
	if sectorsPerFAT == 0 {
		sectorsPerFAT = uint64(sectorsPerFAT32)
	}
	totalSectors := uint64(totalSectors16)
	if totalSectors == 0 {
		totalSectors = uint64(totalSectors32)
	}

	rootDirSectors := (uint64(rootEntries)*32 + uint64(bytesPerSector) - 1) / uint64(bytesPerSector)
	dataSectors := totalSectors - uint64(reservedSectors) - uint64(numFATs)*sectorsPerFAT - rootDirSectors
	clusterCount := uint64(0)
	if sectorsPerCluster > 0 {
		clusterCount = dataSectors / uint64(sectorsPerCluster)
	}

	fsType, name := classifyFATClusterCount(clusterCount)
	return Result{
		Type:            fsType,
		Name:            name,
		ClusterSize:     clusterSize,
		TotalSize:       totalSectors * uint64(bytesPerSector),
		BootSectorOffset: 0,
		Valid:           true,
	}, true
}

// classifyFATClusterCount applies the standard Microsoft FAT cluster-count
// thresholds to discriminate FAT12 from FAT16 from FAT32.
func classifyFATClusterCount(clusters uint64) (types.FileSystemType, string) {
	switch {
	case clusters < 4085:
		return types.FSFAT12, "FAT12"
	case clusters < 65525:
		return types.FSFAT16, "FAT16"
	default:
		return types.FSFAT32, "FAT32"
	}
}

func detectOther(head []byte) (Result, bool) {
	if len(head) >= 1026 && string(head[1024:1026]) == "H+" {
		return Result{Type: types.FSHFSPlus, Name: "HFS+", BootSectorOffset: 1024, Valid: true}, true
	}
	if len(head) >= 65608 && string(head[65600:65608]) == "_BHRfS_M" {
		return Result{Type: types.FSBTRFS, Name: "Btrfs", BootSectorOffset: 65600, Valid: true}, true
	}
	if len(head) >= 4 && string(head[0:4]) == "XFSB" {
		return Result{Type: types.FSXFS, Name: "XFS", BootSectorOffset: 0, Valid: true}, true
	}
	return Result{}, false
}

func trimNull(b []byte) string {
	end := len(b)
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	return string(b[:end])
}
