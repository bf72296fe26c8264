package fsparse

import (
	"encoding/binary"

	"github.com/shubham/filerecovery/internal/types"
)

const (
	fat32MaxDirEntries    = 100000
	fat32MaxChainClusters = 100000
	fat32DeletedMarker    = 0xE5
	fat32AttrVolumeID     = 0x08
	fat32AttrLFN          = 0x0F
	fat32AttrDirectory    = 0x10
	fat32EndOfChain       = 0x0FFFFFF8
	fat32BadCluster       = 0x0FFFFFF7

	fat32ConfidenceDeleted = 0.60
	fat32ConfidenceLive    = 0.85
)

// FAT32BootSector holds the boot sector fields needed to derive the FAT and
// data region offsets.
type FAT32BootSector struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	SectorsPerFAT32   uint32
	RootCluster       uint32
	TotalSectors32    uint32
}

// FAT32Parser implements Parser for FAT32 volumes.
type FAT32Parser struct {
	data        []byte
	boot        FAT32BootSector
	fatOffset   uint64
	dataOffset  uint64
	clusterSize uint32
}

func (p *FAT32Parser) CanParse(headBytes []byte) bool {
	if len(headBytes) < 512 {
		return false
	}
	if headBytes[510] != 0x55 || headBytes[511] != 0xAA {
		return false
	}
	return equalPrefix(headBytes[0x52:], []byte("FAT32"))
}

func (p *FAT32Parser) Init(data []byte) bool {
	if !p.CanParse(data) {
		return false
	}

	var boot FAT32BootSector
	boot.BytesPerSector = binary.LittleEndian.Uint16(data[0x0B:0x0D])
	boot.SectorsPerCluster = data[0x0D]
	boot.ReservedSectors = binary.LittleEndian.Uint16(data[0x0E:0x10])
	boot.NumFATs = data[0x10]
	boot.SectorsPerFAT32 = binary.LittleEndian.Uint32(data[0x24:0x28])
	boot.RootCluster = binary.LittleEndian.Uint32(data[0x2C:0x30])
	boot.TotalSectors32 = binary.LittleEndian.Uint32(data[0x20:0x24])

	if boot.BytesPerSector == 0 || boot.SectorsPerCluster == 0 || boot.NumFATs == 0 {
		return false
	}

	p.data = data
	p.boot = boot
	p.clusterSize = uint32(boot.BytesPerSector) * uint32(boot.SectorsPerCluster)
	p.fatOffset = uint64(boot.ReservedSectors) * uint64(boot.BytesPerSector)
	p.dataOffset = p.fatOffset + uint64(boot.NumFATs)*uint64(boot.SectorsPerFAT32)*uint64(boot.BytesPerSector)
	return true
}

func (p *FAT32Parser) FSType() types.FileSystemType { return types.FSFAT32 }

func (p *FAT32Parser) Info() string {
	return "FAT32, cluster size " + itoa(int(p.clusterSize)) + ", root cluster " + itoa(int(p.boot.RootCluster))
}

// clusterOffset converts a FAT32 cluster number (cluster 2 is the first
// data cluster) to a byte offset.
func (p *FAT32Parser) clusterOffset(cluster uint32) uint64 {
	return p.dataOffset + uint64(cluster-2)*uint64(p.clusterSize)
}

func (p *FAT32Parser) RecoverDeleted() []types.RecoveredFile {
	rootOffset := p.clusterOffset(p.boot.RootCluster)
	return p.walkDirectory(rootOffset, nil, 0)
}

// walkDirectory scans one directory's cluster chain for 8.3 entries,
// LIFO-buffering any preceding long-filename entries so each short entry can
// be paired with its assembled long name. Deleted entries are recovered
// directly; live subdirectory entries are recursed into so deleted files
// nested below the root remain reachable, and live file entries are
// recovered themselves at a higher confidence since their metadata hasn't
// been touched by deletion.
func (p *FAT32Parser) walkDirectory(start uint64, seen map[uint64]bool, depth int) []types.RecoveredFile {
	if depth > 8 {
		return nil
	}
	if seen == nil {
		seen = make(map[uint64]bool)
	}

	var out []types.RecoveredFile
	var lfnParts []string
	entriesSeen := 0
	pos := start
	dirCluster := uint32((start-p.dataOffset)/uint64(p.clusterSize)) + 2
	clusterEnd := start + uint64(p.clusterSize)

	for entriesSeen < fat32MaxDirEntries {
		if pos >= clusterEnd {
			next, ok := p.fatEntry(dirCluster)
			if !ok || next < 2 || next >= fat32BadCluster {
				break // end of the directory's cluster chain
			}
			dirCluster = next
			pos = p.clusterOffset(dirCluster)
			clusterEnd = pos + uint64(p.clusterSize)
		}
		if pos+32 > uint64(len(p.data)) {
			break
		}
		entry := p.data[pos : pos+32]
		pos += 32
		entriesSeen++

		if entry[0] == 0x00 {
			break // end of directory
		}
		attr := entry[11]

		if attr&0x3F == fat32AttrLFN {
			lfnParts = append(lfnParts, decodeLFNEntry(entry))
			continue
		}

		if entry[0] == fat32DeletedMarker {
			if attr&fat32AttrVolumeID != 0 || attr&fat32AttrDirectory != 0 {
				lfnParts = nil
				continue
			}
			name := assembleLFN(lfnParts)
			lfnParts = nil
			if name == "" {
				name = decode83Name(entry)
			}

			cluster := dirEntryCluster(entry)
			size := binary.LittleEndian.Uint32(entry[28:32])
			if size == 0 || cluster < 2 {
				continue
			}
			fragments := p.clusterChainFragments(cluster, uint64(size), seen)
			if len(fragments) == 0 {
				continue
			}
			out = append(out, types.RecoveredFile{
				Filename:        name,
				FileType:        fileExtension(name),
				StartOffset:     fragments[0].Offset,
				FileSize:        fragments[0].Size,
				ConfidenceScore: fat32ConfidenceDeleted,
				IsFragmented:    len(fragments) > 1,
				Fragments:       fragments,
			})
			continue
		}

		if attr&fat32AttrVolumeID != 0 {
			lfnParts = nil
			continue
		}

		cluster := dirEntryCluster(entry)

		if attr&fat32AttrDirectory != 0 {
			lfnParts = nil
			if entry[0] == '.' || cluster < 2 {
				continue // "." and ".." would recurse forever
			}
			out = append(out, p.walkDirectory(p.clusterOffset(cluster), seen, depth+1)...)
			continue
		}

		name := assembleLFN(lfnParts)
		lfnParts = nil
		if name == "" {
			name = decodeShortName(entry)
		}

		size := binary.LittleEndian.Uint32(entry[28:32])
		if size == 0 || cluster < 2 {
			continue
		}
		fragments := p.liveClusterChainFragments(cluster, uint64(size), seen)
		if len(fragments) == 0 {
			continue
		}
		var recoveredSize uint64
		for _, f := range fragments {
			recoveredSize += f.Size
		}
		out = append(out, types.RecoveredFile{
			Filename:        name,
			FileType:        fileExtension(name),
			StartOffset:     fragments[0].Offset,
			FileSize:        recoveredSize,
			ConfidenceScore: fat32ConfidenceLive,
			IsFragmented:    len(fragments) > 1,
			Fragments:       fragments,
		})
	}
	return out
}

// dirEntryCluster reassembles a directory entry's starting cluster from its
// high and low 16-bit halves.
func dirEntryCluster(entry []byte) uint32 {
	return uint32(binary.LittleEndian.Uint16(entry[26:28])) |
		uint32(binary.LittleEndian.Uint16(entry[20:22]))<<16
}

// clusterChainFragments anchors a deleted file's recovery on its first
// cluster only. A deleted file's chain in the FAT is typically already
// zeroed or reused by the time recovery runs, so walking it would as likely
// follow another file's clusters as the deleted file's own; the declared
// file size is not trustworthy evidence that the bytes following the first
// cluster still belong to this file either.
func (p *FAT32Parser) clusterChainFragments(firstCluster uint32, fileSize uint64, seen map[uint64]bool) []types.Fragment {
	offset := p.clusterOffset(firstCluster)
	if seen[offset] {
		return nil
	}
	seen[offset] = true
	if offset >= uint64(len(p.data)) {
		return nil
	}
	size := fileSize
	if size > uint64(p.clusterSize) {
		size = uint64(p.clusterSize)
	}
	if offset+size > uint64(len(p.data)) {
		size = uint64(len(p.data)) - offset
	}
	if size == 0 {
		return nil
	}
	return []types.Fragment{{Offset: offset, Size: size}}
}

// liveClusterChainFragments walks a live file's FAT cluster chain to
// completion. Unlike a deleted file, a live entry's chain is still intact,
// so it is trustworthy evidence of the file's actual extent on disk.
func (p *FAT32Parser) liveClusterChainFragments(firstCluster uint32, fileSize uint64, seen map[uint64]bool) []types.Fragment {
	var fragments []types.Fragment
	cluster := firstCluster
	remaining := fileSize

	for i := 0; i < fat32MaxChainClusters && remaining > 0; i++ {
		offset := p.clusterOffset(cluster)
		if seen[offset] || offset >= uint64(len(p.data)) {
			break
		}
		seen[offset] = true

		size := uint64(p.clusterSize)
		if size > remaining {
			size = remaining
		}
		if offset+size > uint64(len(p.data)) {
			size = uint64(len(p.data)) - offset
		}
		if size == 0 {
			break
		}
		fragments = append(fragments, types.Fragment{Offset: offset, Size: size})
		remaining -= size

		next, ok := p.fatEntry(cluster)
		if !ok || next < 2 || next == fat32BadCluster || next >= fat32EndOfChain {
			break
		}
		cluster = next
	}
	return fragments
}

// fatEntry reads one 32-bit FAT32 table entry, masking off the reserved
// top 4 bits.
func (p *FAT32Parser) fatEntry(cluster uint32) (uint32, bool) {
	off := p.fatOffset + uint64(cluster)*4
	if off+4 > uint64(len(p.data)) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(p.data[off:off+4]) & 0x0FFFFFFF, true
}

// decodeLFNEntry extracts the UTF-16LE name fragment from one long-filename
// directory entry (13 UTF-16 code units split across three field groups).
func decodeLFNEntry(entry []byte) string {
	var units []byte
	units = append(units, entry[1:11]...)
	units = append(units, entry[14:26]...)
	units = append(units, entry[28:32]...)

	out := make([]byte, 0, 13)
	for i := 0; i+1 < len(units); i += 2 {
		unit := uint16(units[i]) | uint16(units[i+1])<<8
		if unit == 0x0000 || unit == 0xFFFF {
			break
		}
		if unit >= 0x20 && unit < 0x7F {
			out = append(out, byte(unit))
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

// assembleLFN joins LFN fragments collected in on-disk (descending
// sequence-number) order, which is the reverse of directory-scan order.
func assembleLFN(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	var name string
	for i := len(parts) - 1; i >= 0; i-- {
		name += parts[i]
	}
	return name
}

// decode83Name reconstructs a short filename from a deleted entry. The
// first byte, overwritten by the deletion marker, is not recoverable and is
// rendered as '_'.
func decode83Name(entry []byte) string {
	base := "_" + trimSpaces(entry[1:8])
	ext := trimSpaces(entry[8:11])
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// decodeShortName reconstructs a short filename from a live (not deleted)
// entry, where the lead byte is intact.
func decodeShortName(entry []byte) string {
	base := trimSpaces(entry[0:8])
	ext := trimSpaces(entry[8:11])
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func trimSpaces(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return string(b[:end])
}
