package carve

import (
	"sort"

	"github.com/shubham/filerecovery/internal/binaryutil"
	"github.com/shubham/filerecovery/internal/types"
)

const zipMaxSize int64 = 100 * 1024 * 1024
const zipMaxEntries = 10000

var zipLocalHeader = []byte{'P', 'K', 0x03, 0x04}
var zipEmptyEOCD = []byte{'P', 'K', 0x05, 0x06}
var zipSpanned = []byte{'P', 'K', 0x07, 0x08}

// ZIPEngine carves ZIP-family archives (zip, jar, apk, and the Office Open
// XML formats, which are ZIP containers) by bounding each local-header
// candidate against either a trailing end-of-central-directory record or,
// lacking one, a forward walk of the local-file-header chain.
type ZIPEngine struct{}

func (ZIPEngine) SupportedTypes() []string {
	return []string{"zip", "jar", "apk", "docx", "xlsx", "pptx"}
}
func (ZIPEngine) Signatures() [][]byte {
	return [][]byte{zipLocalHeader, zipEmptyEOCD, zipSpanned}
}
func (ZIPEngine) Footers() [][]byte { return [][]byte{zipEmptyEOCD} }
func (ZIPEngine) MaxSize() int64    { return zipMaxSize }

func (e ZIPEngine) Carve(data []byte, baseOffset uint64) []types.RecoveredFile {
	matches := binaryutil.FindAll(data, zipLocalHeader)
	threshold := minConfidence(len(data))

	type candidate struct {
		start, size int
		eocdFound   bool
	}
	var candidates []candidate
	for _, m := range matches {
		size, eocdFound := e.bound(data, m)
		if size <= 0 {
			continue
		}
		candidates = append(candidates, candidate{m, size, eocdFound})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].start < candidates[j].start })

	var out []types.RecoveredFile
	lastEnd := -1
	for _, c := range candidates {
		if c.start < lastEnd {
			continue // de-overlap: drop candidates starting before the previous one ended
		}
		end := c.start + c.size
		if end > len(data) {
			end = len(data)
		}
		payload := data[c.start:end]

		file := types.RecoveredFile{
			Filename:    binaryutil.SynthesizeName(baseOffset+uint64(c.start), "zip"),
			FileType:    "zip",
			StartOffset: baseOffset + uint64(c.start),
			FileSize:    uint64(len(payload)),
			Fragments: []types.Fragment{
				{Offset: baseOffset + uint64(c.start), Size: uint64(len(payload))},
			},
		}
		file.ConfidenceScore = confidenceZIP(payload, c.eocdFound)
		if file.ConfidenceScore > threshold {
			out = append(out, file)
			lastEnd = end
		}
	}
	return out
}

func (e ZIPEngine) Validate(file types.RecoveredFile, data []byte) float64 {
	_, eocdFound := e.findEOCD(data, 0, len(data))
	return confidenceZIP(data, eocdFound)
}

// bound finds the end of the archive starting at the local header at start.
// The next local-header signature after start caps the search window
// (disambiguating adjacent archives); within that window it searches
// backward for a valid EOCD record, falling back to a forward walk of the
// local-file-header chain when none validates.
func (e ZIPEngine) bound(data []byte, start int) (size int, eocdFound bool) {
	limit := len(data)
	if int64(limit-start) > zipMaxSize {
		limit = start + int(zipMaxSize)
	}
	nextOffsets := binaryutil.FindAll(data[start+4:], zipLocalHeader)
	if len(nextOffsets) > 0 {
		window := start + 4 + nextOffsets[0]
		if window < limit {
			limit = window
		}
	}

	if end, ok := e.findEOCD(data, start, limit); ok {
		return end - start, true
	}
	return e.walkLocalHeaders(data, start, limit), false
}

// findEOCD searches window [start,limit) backward for the last
// end-of-central-directory record and validates its comment length.
func (e ZIPEngine) findEOCD(data []byte, start, limit int) (end int, ok bool) {
	offsets := binaryutil.FindAll(data[start:limit], zipEmptyEOCD)
	if len(offsets) == 0 {
		return 0, false
	}
	eocd := start + offsets[len(offsets)-1]
	if eocd+22 > len(data) {
		return 0, false
	}
	commentLen := int(data[eocd+20]) | int(data[eocd+21])<<8
	if commentLen > 1024 {
		return 0, false
	}
	size := eocd + 22 + commentLen
	if size > limit {
		size = limit
	}
	return size, true
}

// walkLocalHeaders iterates local-file-header entries forward from start,
// validating each, and returns the offset just past the last valid entry's
// chain. A general-purpose flag bit 3 set means the compressed size is
// unreliable and 12 trailing bytes (the data descriptor) are assumed.
func (e ZIPEngine) walkLocalHeaders(data []byte, start, limit int) int {
	pos := start
	entries := 0
	lastGoodEnd := start

	for pos+30 <= limit && entries < zipMaxEntries {
		if !equalBytes(data[pos:pos+4], zipLocalHeader) {
			break
		}
		versionNeeded := int(le16(data[pos+4:pos+6]))
		flags := int(le16(data[pos+6 : pos+8]))
		compression := int(le16(data[pos+8 : pos+10]))
		compressedSize := int(le32(data[pos+18 : pos+22]))
		filenameLen := int(le16(data[pos+26 : pos+28]))
		extraLen := int(le16(data[pos+28 : pos+30]))

		if versionNeeded > 63 || compression > 99 || filenameLen > 512 || extraLen > 1024 {
			break
		}

		entryEnd := pos + 30 + filenameLen + extraLen + compressedSize
		if flags&0x08 != 0 {
			entryEnd += 12
		}
		if entryEnd > limit {
			break
		}

		lastGoodEnd = entryEnd
		pos = entryEnd
		entries++
	}
	return lastGoodEnd - start
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func confidenceZIP(payload []byte, eocdFound bool) float64 {
	score := 0.5

	headerOK := len(payload) >= 4 && equalBytes(payload[:4], zipLocalHeader)
	if headerOK {
		score += 0.2
	}

	if eocdFound {
		score += 0.3
	} else if score > 0.6 {
		score = 0.6
	}

	window := payload
	if len(window) > 4096 {
		window = window[:4096]
	}
	entropy := binaryutil.Entropy(window)
	if entropy > 3.0 && entropy < 7.5 {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
