package fsparse

import (
	"encoding/binary"

	"github.com/shubham/filerecovery/internal/types"
)

const (
	ntfsOEMOffset     = 3
	ntfsMaxMFTRecords = 100000
	ntfsMaxClusters   = 50000

	ntfsMFTFlagInUse     = 0x0001
	ntfsMFTFlagDirectory = 0x0002

	ntfsConfidenceDeleted = 0.70
	ntfsConfidenceLive    = 0.95

	ntfsAttrFileName       = 0x30
	ntfsAttrData           = 0x80
	ntfsAttrEnd            = 0xFFFFFFFF
	ntfsFileNameNamespaceWin32    = 1
	ntfsFileNameNamespacePosix    = 0
	ntfsFileNameNamespaceWin32DOS = 3
)

var ntfsOEMID = []byte("NTFS    ")

// NTFSBootSector holds the boot sector fields needed to locate the MFT and
// derive cluster geometry.
type NTFSBootSector struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	MFTClusterNumber  uint64
	MFTRecordSizeRaw  int8
}

// NTFSParser implements Parser for NTFS volumes.
type NTFSParser struct {
	data        []byte
	boot        NTFSBootSector
	clusterSize uint32
	recordSize  uint32
}

func (p *NTFSParser) CanParse(headBytes []byte) bool {
	if len(headBytes) < 512 {
		return false
	}
	return equalPrefix(headBytes[ntfsOEMOffset:], ntfsOEMID)
}

func (p *NTFSParser) Init(data []byte) bool {
	if len(data) < 512 {
		return false
	}
	if !equalPrefix(data[ntfsOEMOffset:], ntfsOEMID) {
		return false
	}

	var boot NTFSBootSector
	boot.BytesPerSector = binary.LittleEndian.Uint16(data[0x0B:0x0D])
	boot.SectorsPerCluster = data[0x0D]
	boot.MFTClusterNumber = binary.LittleEndian.Uint64(data[0x30:0x38])
	boot.MFTRecordSizeRaw = int8(data[0x40])

	if boot.BytesPerSector == 0 || boot.SectorsPerCluster == 0 {
		return false
	}

	p.data = data
	p.boot = boot
	p.clusterSize = uint32(boot.BytesPerSector) * uint32(boot.SectorsPerCluster)
	p.recordSize = mftRecordSize(boot.MFTRecordSizeRaw, p.clusterSize)
	return true
}

func (p *NTFSParser) FSType() types.FileSystemType { return types.FSNTFS }

func (p *NTFSParser) Info() string {
	return "NTFS, cluster size " + itoa(int(p.clusterSize)) + ", MFT record size " + itoa(int(p.recordSize))
}

// mftRecordSize interprets the boot sector's signed byte encoding: positive
// values are a cluster count, negative values are a power-of-two byte size
// (e.g. -10 means 1024 bytes).
func mftRecordSize(raw int8, clusterSize uint32) uint32 {
	if raw >= 0 {
		return uint32(raw) * clusterSize
	}
	return 1 << uint(-raw)
}

func (p *NTFSParser) mftOffset() uint64 {
	return p.boot.MFTClusterNumber * uint64(p.clusterSize)
}

// RecoverDeleted walks the MFT (directory entries excluded) and emits both
// deleted and live file records: a record counts as deleted if
// MFT_RECORD_IN_USE is clear, or if it's in use but sequence_number > 1,
// meaning the slot has been reused since its name was last cut.
func (p *NTFSParser) RecoverDeleted() []types.RecoveredFile {
	var out []types.RecoveredFile
	mftStart := p.mftOffset()
	if mftStart >= uint64(len(p.data)) {
		return nil
	}

	for i := 0; i < ntfsMaxMFTRecords; i++ {
		off := mftStart + uint64(i)*uint64(p.recordSize)
		if off+uint64(p.recordSize) > uint64(len(p.data)) {
			break
		}
		record := p.data[off : off+uint64(p.recordSize)]
		if !validMFTRecord(record, p.recordSize) {
			continue
		}

		flags := binary.LittleEndian.Uint16(record[0x16:0x18])
		if flags&ntfsMFTFlagDirectory != 0 {
			continue
		}
		inUse := flags&ntfsMFTFlagInUse != 0
		sequenceNumber := binary.LittleEndian.Uint16(record[0x10:0x12])
		deleted := !inUse || sequenceNumber > 1

		name := extractFileName(record)
		if name == "" {
			continue
		}
		_, fragments, ok := extractDataRuns(record, p.clusterSize, uint64(len(p.data)))
		if !ok || len(fragments) == 0 {
			continue
		}
		var recoveredSize uint64
		for _, f := range fragments {
			recoveredSize += f.Size
		}
		if recoveredSize == 0 {
			continue
		}

		confidence := ntfsConfidenceLive
		if deleted {
			confidence = ntfsConfidenceDeleted
		}
		out = append(out, types.RecoveredFile{
			Filename:        name,
			FileType:        fileExtension(name),
			StartOffset:     fragments[0].Offset,
			FileSize:        recoveredSize,
			ConfidenceScore: confidence,
			IsFragmented:    len(fragments) > 1,
			Fragments:       fragments,
		})
	}
	return out
}

func validMFTRecord(record []byte, recordSize uint32) bool {
	if uint32(len(record)) < recordSize || recordSize < 48 {
		return false
	}
	if !equalPrefix(record, []byte("FILE")) {
		return false
	}
	usedSize := binary.LittleEndian.Uint32(record[0x18:0x1C])
	allocSize := binary.LittleEndian.Uint32(record[0x1C:0x20])
	if usedSize > allocSize || allocSize > 4096 {
		return false
	}
	return true
}

// extractFileName walks the MFT record's attribute list for a $FILE_NAME
// attribute, preferring the Win32 (or combined Win32+DOS) namespace over a
// POSIX-only name when both are present.
func extractFileName(record []byte) string {
	attrStart := binary.LittleEndian.Uint16(record[0x14:0x16])
	var best string
	bestPreferred := false

	pos := uint32(attrStart)
	for pos+16 <= uint32(len(record)) {
		typ := binary.LittleEndian.Uint32(record[pos : pos+4])
		if typ == ntfsAttrEnd {
			break
		}
		length := binary.LittleEndian.Uint32(record[pos+4 : pos+8])
		if length == 0 || pos+length > uint32(len(record)) {
			break
		}

		if typ == ntfsAttrFileName {
			nonResident := record[pos+8]
			if nonResident == 0 {
				valueOffset := binary.LittleEndian.Uint16(record[pos+20 : pos+22])
				valueStart := pos + uint32(valueOffset)
				if valueStart+0x42 <= uint32(len(record)) {
					nameLen := record[valueStart+0x40]
					namespace := record[valueStart+0x41]
					nameBytes := valueStart + 0x42
					end := nameBytes + uint32(nameLen)*2
					if end <= uint32(len(record)) && !bestPreferred {
						name := utf16leToASCII(record[nameBytes:end])
						if name != "" {
							best = name
							bestPreferred = namespace == ntfsFileNameNamespaceWin32 ||
								namespace == ntfsFileNameNamespaceWin32DOS
						}
					}
				}
			}
		}
		pos += length
	}
	return best
}

// utf16leToASCII converts a UTF-16LE byte sequence to ASCII, replacing any
// character outside the printable ASCII range with '_'.
func utf16leToASCII(b []byte) string {
	out := make([]byte, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		unit := uint16(b[i]) | uint16(b[i+1])<<8
		if unit >= 0x20 && unit < 0x7F {
			out = append(out, byte(unit))
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

// extractDataRuns locates the $DATA attribute and, for non-resident data,
// decodes its run list into fragments. A run with no offset field (offset
// size nibble 0) is sparse:
// it contributes no fragment but iteration continues rather than stopping,
// since a sparse run does not mark the end of the list.
func extractDataRuns(record []byte, clusterSize uint32, deviceSize uint64) (uint64, []types.Fragment, bool) {
	attrStart := binary.LittleEndian.Uint16(record[0x14:0x16])
	pos := uint32(attrStart)

	for pos+16 <= uint32(len(record)) {
		typ := binary.LittleEndian.Uint32(record[pos : pos+4])
		if typ == ntfsAttrEnd {
			break
		}
		length := binary.LittleEndian.Uint32(record[pos+4 : pos+8])
		if length == 0 || pos+length > uint32(len(record)) {
			break
		}

		if typ == ntfsAttrData {
			nonResident := record[pos+8]
			if nonResident == 0 {
				// resident data lives inline in the MFT record, not at a
				// device offset expressible as a Fragment; not recoverable
				// through this path.
				return 0, nil, false
			}

			realSize := binary.LittleEndian.Uint64(record[pos+48 : pos+56])
			runListOffset := binary.LittleEndian.Uint16(record[pos+32 : pos+34])
			runStart := pos + uint32(runListOffset)
			if runStart > pos+length {
				return 0, nil, false
			}
			fragments := parseDataRuns(record[runStart:pos+length], clusterSize, deviceSize, realSize)
			if fragments == nil {
				return 0, nil, false
			}
			return realSize, fragments, true
		}
		pos += length
	}
	return 0, nil, false
}

// parseDataRuns decodes an NTFS run list: a sequence of header bytes
// (length-field-size nibble, offset-field-size nibble) followed by a
// little-endian length and a signed little-endian cluster-offset delta,
// terminated by a zero header byte. Runs are cluster-rounded, so the last
// emitted fragment is trimmed against realSize: the attribute's declared
// byte length, which is almost never an exact multiple of the cluster size.
func parseDataRuns(runs []byte, clusterSize uint32, deviceSize, realSize uint64) []types.Fragment {
	var fragments []types.Fragment
	var clusterPos int64
	pos := 0
	clusterCount := uint64(0)
	var emitted uint64

	for pos < len(runs) && emitted < realSize {
		header := runs[pos]
		if header == 0 {
			break
		}
		lengthSize := int(header & 0x0F)
		offsetSize := int(header >> 4)
		pos++
		if pos+lengthSize+offsetSize > len(runs) {
			break
		}

		length := readLEUint(runs[pos : pos+lengthSize])
		pos += lengthSize

		var delta int64
		if offsetSize > 0 {
			delta = readLESignedInt(runs[pos : pos+offsetSize])
		}
		pos += offsetSize

		if offsetSize == 0 {
			// sparse run: no fragment, iteration continues.
			clusterCount += length
			if clusterCount > ntfsMaxClusters {
				break
			}
			continue
		}

		clusterPos += delta
		if clusterPos < 0 {
			break
		}
		offset := uint64(clusterPos) * uint64(clusterSize)
		size := length * uint64(clusterSize)
		if offset+size > deviceSize {
			if offset >= deviceSize {
				break
			}
			size = deviceSize - offset
		}
		if remaining := realSize - emitted; size > remaining {
			size = remaining
		}
		if size == 0 {
			break
		}
		fragments = append(fragments, types.Fragment{Offset: offset, Size: size})
		emitted += size

		clusterCount += length
		if clusterCount > ntfsMaxClusters {
			break
		}
	}
	return fragments
}

func readLEUint(b []byte) uint64 {
	var v uint64
	for i, c := range b {
		v |= uint64(c) << (8 * uint(i))
	}
	return v
}

// readLESignedInt reads a little-endian two's-complement integer of
// arbitrary byte width, sign-extending from its top bit.
func readLESignedInt(b []byte) int64 {
	var v int64
	for i, c := range b {
		v |= int64(c) << (8 * uint(i))
	}
	if len(b) > 0 && len(b) < 8 {
		signBit := int64(1) << (uint(len(b))*8 - 1)
		if v&signBit != 0 {
			v -= signBit << 1
		}
	}
	return v
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
