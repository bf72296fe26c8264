package carve

import (
	"sort"

	"github.com/shubham/filerecovery/internal/binaryutil"
	"github.com/shubham/filerecovery/internal/types"
)

const jpegMaxSize int64 = 100 * 1024 * 1024

var jpegSignatures = [][]byte{
	{0xFF, 0xD8, 0xFF, 0xE0}, // JFIF
	{0xFF, 0xD8, 0xFF, 0xE1}, // EXIF
	{0xFF, 0xD8, 0xFF, 0xDB}, // raw
}

var jpegFooter = []byte{0xFF, 0xD9}

// JPEGEngine carves JPEG images by scanning for SOI followed by an APP0,
// APP1 or DQT marker, then
// either finding the nearest EOI marker or walking the segment chain.
type JPEGEngine struct{}

func (JPEGEngine) SupportedTypes() []string { return []string{"JPEG"} }
func (JPEGEngine) Signatures() [][]byte     { return jpegSignatures }
func (JPEGEngine) Footers() [][]byte        { return [][]byte{jpegFooter} }
func (JPEGEngine) MaxSize() int64           { return jpegMaxSize }

func (e JPEGEngine) Carve(data []byte, baseOffset uint64) []types.RecoveredFile {
	var matches []int
	for _, sig := range jpegSignatures {
		matches = append(matches, binaryutil.FindAll(data, sig)...)
	}
	sort.Ints(matches)

	threshold := minConfidence(len(data))
	smallHaystack := len(data) < 1000

	var out []types.RecoveredFile
	for _, m := range matches {
		size, structureOK := e.bound(data, m)
		if size == 0 {
			continue
		}
		if size < 100 && !smallHaystack {
			continue
		}

		end := m + size
		if end > len(data) {
			end = len(data)
		}
		payload := data[m:end]

		file := types.RecoveredFile{
			Filename:    binaryutil.SynthesizeName(baseOffset+uint64(m), "JPEG"),
			FileType:    "JPEG",
			StartOffset: baseOffset + uint64(m),
			FileSize:    uint64(len(payload)),
			Fragments: []types.Fragment{
				{Offset: baseOffset + uint64(m), Size: uint64(len(payload))},
			},
		}
		file.ConfidenceScore = confidenceJPEG(payload, structureOK)
		if file.ConfidenceScore > threshold {
			out = append(out, file)
		}
	}
	return out
}

func (e JPEGEngine) Validate(file types.RecoveredFile, data []byte) float64 {
	_, segments := e.segmentWalk(data, 0, len(data))
	return confidenceJPEG(data, segments >= 1)
}

// bound locates the end of the JPEG starting at start within data. It first
// scans forward for the nearest EOI marker; if none appears within
// jpegMaxSize, it falls back to walking the segment chain and returns the
// offset just past the last coherent segment.
func (e JPEGEngine) bound(data []byte, start int) (size int, structureOK bool) {
	limit := start + int(jpegMaxSize)
	if limit > len(data) {
		limit = len(data)
	}

	eoiOffsets := binaryutil.FindAll(data[start:limit], jpegFooter)
	segEnd, segments := e.segmentWalk(data, start, limit)
	structureOK = segments >= 1

	if len(eoiOffsets) > 0 {
		return eoiOffsets[0] + 2, structureOK
	}
	if segEnd > start {
		return segEnd - start, structureOK
	}
	return 0, structureOK
}

// segmentWalk walks the JPEG marker chain from start (the SOI byte) up to
// limit, honoring byte-stuffing (FF 00), fill bytes (FF FF), and restart
// markers (FF D0-D7, which carry no length field). It stops at the first
// EOI (FF D9), after 100 segments, or when the chain becomes incoherent.
func (e JPEGEngine) segmentWalk(data []byte, start, limit int) (end int, segments int) {
	pos := start + 2
	for pos+2 <= limit && segments < 100 {
		if data[pos] != 0xFF {
			break
		}
		marker := data[pos+1]
		switch {
		case marker == 0x00 || marker == 0xFF:
			pos += 2
		case marker >= 0xD0 && marker <= 0xD7:
			pos += 2
			segments++
		case marker == 0xD9:
			pos += 2
			segments++
			return pos, segments
		default:
			if pos+4 > limit {
				return pos, segments
			}
			length := int(be16(data[pos+2 : pos+4]))
			pos += 2 + length
			segments++
		}
	}
	return pos, segments
}

func confidenceJPEG(payload []byte, structureOK bool) float64 {
	headerOK := len(payload) >= 4
	if headerOK {
		headerOK = false
		for _, sig := range jpegSignatures {
			if len(payload) >= len(sig) && equalBytes(payload[:len(sig)], sig) {
				headerOK = true
				break
			}
		}
	}
	footerOK := len(payload) >= 2 && payload[len(payload)-2] == 0xFF && payload[len(payload)-1] == 0xD9

	window := payload
	if len(window) > 4096 {
		window = window[:4096]
	}
	entropy := binaryutil.Entropy(window)

	return binaryutil.Combine(headerOK, footerOK, entropy, structureOK)
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
