package carve

import (
	"github.com/shubham/filerecovery/internal/binaryutil"
	"github.com/shubham/filerecovery/internal/types"
)

const pdfMaxSize int64 = 1024 * 1024 * 1024
const pdfEstimateCap = 10 * 1024 * 1024
const pdfEstimateWindow = 32768

var pdfSignature = []byte("%PDF-")

var pdfFooters = [][]byte{
	[]byte("%%EOF"),
	[]byte("\n%%EOF"),
	[]byte("\r\n%%EOF"),
}

// PDFEngine carves PDF documents by bounding each candidate between its
// "%PDF-" header and the trailing "%%EOF" marker, disambiguating adjacent
// documents by capping the search at the next document's header.
type PDFEngine struct{}

func (PDFEngine) SupportedTypes() []string { return []string{"PDF"} }
func (PDFEngine) Signatures() [][]byte     { return [][]byte{pdfSignature} }
func (PDFEngine) Footers() [][]byte        { return pdfFooters }
func (PDFEngine) MaxSize() int64           { return pdfMaxSize }

func (e PDFEngine) Carve(data []byte, baseOffset uint64) []types.RecoveredFile {
	if len(data) < 20 {
		return nil
	}

	matches := binaryutil.FindAll(data, pdfSignature)
	threshold := minConfidence(len(data))
	smallHaystack := len(data) < 1000

	var out []types.RecoveredFile
	for _, m := range matches {
		size, heuristic := e.boundEnd(data, m)
		if size == 0 || (size < 100 && !smallHaystack) {
			continue
		}

		end := m + size
		if end > len(data) {
			end = len(data)
		}
		payload := data[m:end]

		file := types.RecoveredFile{
			Filename:    binaryutil.SynthesizeName(baseOffset+uint64(m), "PDF"),
			FileType:    "PDF",
			StartOffset: baseOffset + uint64(m),
			FileSize:    uint64(len(payload)),
			Fragments: []types.Fragment{
				{Offset: baseOffset + uint64(m), Size: uint64(len(payload))},
			},
		}
		file.ConfidenceScore = confidencePDF(payload, heuristic)
		if file.ConfidenceScore > threshold {
			out = append(out, file)
		}
	}
	return out
}

func (e PDFEngine) Validate(file types.RecoveredFile, data []byte) float64 {
	return confidencePDF(data, false)
}

// boundEnd finds the end of the PDF starting at start. It first locates the
// next "%PDF-" occurrence to use as a hard upper bound (disambiguating
// adjacent documents), then searches backward within that window for the
// last footer occurrence. Lacking a footer, it falls back to the next
// document's boundary, and failing that to estimateSize — a heuristic whose
// use is reported back via the heuristic return value so callers can
// discount confidence accordingly.
func (e PDFEngine) boundEnd(data []byte, start int) (size int, heuristic bool) {
	searchEnd := len(data)
	nextOffsets := binaryutil.FindAll(data[start+len(pdfSignature):], pdfSignature)
	hasNext := len(nextOffsets) > 0
	var nextPDF int
	if hasNext {
		nextPDF = start + len(pdfSignature) + nextOffsets[0]
		searchEnd = nextPDF
	}
	if int64(searchEnd-start) > pdfMaxSize {
		searchEnd = start + int(pdfMaxSize)
	}
	if searchEnd > len(data) {
		searchEnd = len(data)
	}

	footerEnd := -1
	for _, footer := range pdfFooters {
		offsets := binaryutil.FindAll(data[start:searchEnd], footer)
		if len(offsets) == 0 {
			continue
		}
		last := offsets[len(offsets)-1]
		end := last + len(footer)
		if end > footerEnd {
			footerEnd = end
		}
	}
	if footerEnd >= 0 {
		return footerEnd, false
	}
	if hasNext {
		return nextPDF - start, false
	}

	window := data[start:]
	if len(window) > pdfEstimateWindow {
		window = window[:pdfEstimateWindow]
	}
	return estimatePDFSize(window), true
}

// estimatePDFSize is the last-resort fallback when neither a footer nor a
// following document boundary exists: it finds the last occurrence of an
// object-boundary token and pads past it. This is a heuristic (Open
// Question: PDF size estimation) and is reported as such to the confidence
// calculation.
func estimatePDFSize(window []byte) int {
	best := -1
	for _, token := range [][]byte{[]byte(" obj"), []byte("endobj"), []byte("endstream")} {
		offsets := binaryutil.FindAll(window, token)
		if len(offsets) == 0 {
			continue
		}
		end := offsets[len(offsets)-1] + len(token)
		if end > best {
			best = end
		}
	}
	if best < 0 {
		cap := pdfEstimateCap
		if len(window) < cap {
			return len(window)
		}
		return cap
	}
	size := best + 100
	if size > pdfEstimateCap {
		size = pdfEstimateCap
	}
	if size > len(window) {
		size = len(window)
	}
	return size
}

func hasValidTrailer(payload []byte) bool {
	tail := payload
	if len(tail) > 1024 {
		tail = tail[len(tail)-1024:]
	}
	for _, footer := range pdfFooters {
		if len(binaryutil.FindAll(tail, footer)) > 0 {
			return true
		}
	}
	return false
}

func validatePDFStructure(payload []byte) bool {
	if len(payload) < 20 {
		return false
	}
	header := payload[:20]
	if len(header) < 7 || string(header[:7]) != "%PDF-1." {
		return false
	}
	window := payload
	if len(window) > 4096 {
		window = window[:4096]
	}
	return len(binaryutil.FindAll(window, []byte(" obj"))) > 0
}

func confidencePDF(payload []byte, heuristicSize bool) float64 {
	headerOK := len(payload) >= len(pdfSignature) && equalBytes(payload[:len(pdfSignature)], pdfSignature)
	footerOK := hasValidTrailer(payload)
	structureOK := validatePDFStructure(payload) && !heuristicSize

	window := payload
	if len(window) > 4096 {
		window = window[:4096]
	}
	entropy := binaryutil.Entropy(window)

	return binaryutil.Combine(headerOK, footerOK, entropy, structureOK)
}
