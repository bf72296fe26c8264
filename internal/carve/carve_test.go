package carve

import (
	"bytes"
	"testing"
)

// S1 — JPEG in a noisy buffer.
func TestJPEGInNoisyBuffer(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA}, 1<<20)
	body := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	for i := 0; i < 100; i++ {
		body = append(body, byte(i))
	}
	body = append(body, 0xFF, 0xD9)
	copy(data[500000:], body)

	files := JPEGEngine{}.Carve(data, 0)
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1", len(files))
	}
	f := files[0]
	if f.StartOffset != 500000 || f.FileSize != 112 || f.FileType != "JPEG" {
		t.Fatalf("got %+v", f)
	}
	if f.ConfidenceScore < 0.7 {
		t.Errorf("confidence = %v, want >= 0.7", f.ConfidenceScore)
	}
}

// S2 — two adjacent PDFs.
func TestTwoAdjacentPDFs(t *testing.T) {
	body := func() []byte {
		b := []byte("%PDF-1.4\n")
		for i := 0; i < 80; i++ {
			b = append(b, byte('A'+i%26))
		}
		b = append(b, []byte(" 1 0 obj\n")...)
		b = append(b, []byte("%%EOF")...)
		return b
	}
	docA := body()
	docB := body()

	buf := append([]byte{}, docA...)
	buf = append(buf, make([]byte, 50)...)
	buf = append(buf, docB...)

	files := PDFEngine{}.Carve(buf, 0)
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(files), files)
	}
	if files[0].StartOffset != 0 || files[0].FileSize != uint64(len(docA)) {
		t.Errorf("doc A: %+v", files[0])
	}
	wantBOffset := uint64(len(docA) + 50)
	if files[1].StartOffset != wantBOffset || files[1].FileSize != uint64(len(docB)) {
		t.Errorf("doc B: %+v, want offset %d size %d", files[1], wantBOffset, len(docB))
	}
	for _, f := range files {
		if f.ConfidenceScore <= 0.7 {
			t.Errorf("confidence = %v, want > 0.7", f.ConfidenceScore)
		}
	}
}

// S3 — corrupted PNG with no IEND.
func TestCorruptedPNGNoIEND(t *testing.T) {
	var buf []byte
	buf = append(buf, pngSignature...)
	ihdr := make([]byte, 13)
	for i := range ihdr {
		ihdr[i] = byte(i * 7)
	}
	buf = append(buf, 0, 0, 0, 13) // length
	buf = append(buf, 'I', 'H', 'D', 'R')
	buf = append(buf, ihdr...)
	buf = append(buf, 0, 0, 0, 0) // crc placeholder
	for i := 0; i < 50; i++ {
		buf = append(buf, byte(i%4))
	}

	files := PNGEngine{}.Carve(buf, 0)
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1", len(files))
	}
	f := files[0]
	if f.StartOffset != 0 {
		t.Errorf("start offset = %d, want 0", f.StartOffset)
	}
	if f.ConfidenceScore >= 0.7 || f.ConfidenceScore < 0.4 {
		t.Errorf("confidence = %v, want in [0.4, 0.7)", f.ConfidenceScore)
	}
}

// S4 — ZIP with a valid EOCD.
func TestZIPWithValidEOCD(t *testing.T) {
	filename := []byte("test.txt")
	payload := []byte("Hello")

	var buf []byte
	buf = append(buf, zipLocalHeader...)
	buf = append(buf, 20, 0) // version needed
	buf = append(buf, 0, 0) // flags
	buf = append(buf, 0, 0) // compression method (stored)
	buf = append(buf, 0, 0, 0, 0) // mod time/date
	buf = append(buf, 0, 0, 0, 0) // crc32
	buf = append(buf, byte(len(payload)), 0, 0, 0) // compressed size
	buf = append(buf, byte(len(payload)), 0, 0, 0) // uncompressed size
	buf = append(buf, byte(len(filename)), 0) // filename length
	buf = append(buf, 0, 0) // extra field length
	buf = append(buf, filename...)
	buf = append(buf, payload...)

	// central directory header (46 bytes fixed + filename)
	cdStart := len(buf)
	buf = append(buf, 'P', 'K', 0x01, 0x02)
	buf = append(buf, make([]byte, 42)...)
	buf = append(buf, filename...)
	_ = cdStart

	eocdOffset := len(buf)
	buf = append(buf, zipEmptyEOCD...)
	buf = append(buf, 0, 0) // disk number
	buf = append(buf, 0, 0) // disk with central dir
	buf = append(buf, 1, 0) // entries on this disk
	buf = append(buf, 1, 0) // total entries
	buf = append(buf, 0, 0, 0, 0) // central dir size (unused by our validator)
	buf = append(buf, 0, 0, 0, 0) // central dir offset
	buf = append(buf, 0, 0) // comment length
	_ = eocdOffset

	files := ZIPEngine{}.Carve(buf, 0)
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1: %+v", len(files), files)
	}
	f := files[0]
	if f.FileSize != uint64(len(buf)) {
		t.Errorf("file size = %d, want %d", f.FileSize, len(buf))
	}
	if f.FileType != "zip" {
		t.Errorf("file type = %q, want zip", f.FileType)
	}
	if f.ConfidenceScore <= 0.7 {
		t.Errorf("confidence = %v, want > 0.7", f.ConfidenceScore)
	}
}

func TestJPEGEmptyInput(t *testing.T) {
	if files := (JPEGEngine{}).Carve(nil, 0); files != nil {
		t.Errorf("empty input: got %v, want nil", files)
	}
}

func TestZIPDeoverlap(t *testing.T) {
	// one local header followed by an EOCD; whatever candidates Carve
	// returns must not overlap one another.
	filename := []byte("a.txt")
	entry := func() []byte {
		var b []byte
		b = append(b, zipLocalHeader...)
		b = append(b, 20, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
		b = append(b, byte(len(filename)), 0, 0, 0)
		b = append(b, filename...)
		b = append(b, zipEmptyEOCD...)
		b = append(b, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
		return b
	}()

	files := ZIPEngine{}.Carve(entry, 0)
	for i := 1; i < len(files); i++ {
		if files[i].StartOffset < files[i-1].StartOffset+files[i-1].FileSize {
			t.Errorf("overlapping candidates survived de-overlap: %+v", files)
		}
	}
}
