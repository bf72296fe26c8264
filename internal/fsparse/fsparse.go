// Package fsparse implements the metadata-based recovery parsers: ext2/3/4,
// NTFS, and FAT32. Each parser walks its filesystem's on-disk structures —
// superblocks, inode tables, MFT records, directory entries, FATs — to
// reconstruct file identities and harvest deleted-but-not-yet-overwritten
// entries. Every field read is explicit and endianness-declared; none of
// this package reinterprets untrusted bytes as host structs.
package fsparse

import "github.com/shubham/filerecovery/internal/types"

// Parser is the contract the recovery engine's metadata phase drives.
type Parser interface {
	// CanParse reports whether headBytes (the first >=8KiB of the device)
	// looks like this filesystem.
	CanParse(headBytes []byte) bool
	// Init loads a borrowed byte window (up to 100MiB from the start of the
	// partition) that RecoverDeleted will walk. The parser keeps a
	// reference to the slice, without copying it, until the next Init.
	Init(data []byte) bool
	// FSType reports the concrete filesystem family this parser detected.
	FSType() types.FileSystemType
	// RecoverDeleted walks the metadata structures and returns every
	// deleted-but-recoverable file it can identify.
	RecoverDeleted() []types.RecoveredFile
	// Info returns a short human-readable summary of the parsed volume.
	Info() string
}

// sniffFileType content-sniffs the first bytes of a recovered payload using
// fixed magic sequences, falling back to a printable-byte-ratio heuristic.
func sniffFileType(data []byte) string {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}

	type magic struct {
		prefix []byte
		name   string
	}
	magics := []magic{
		{[]byte{0xFF, 0xD8, 0xFF}, "jpg"},
		{[]byte{0x89, 'P', 'N', 'G'}, "png"},
		{[]byte("%PDF-"), "pdf"},
		{[]byte{'P', 'K', 0x03, 0x04}, "zip"},
		{[]byte("GIF8"), "gif"},
		{[]byte{0x49, 0x49, 0x2A, 0x00}, "tiff"},
		{[]byte{0x4D, 0x4D, 0x00, 0x2A}, "tiff"},
		{[]byte{0x7F, 'E', 'L', 'F'}, "elf"},
		{[]byte("%!PS"), "ps"},
	}
	for _, m := range magics {
		if len(head) >= len(m.prefix) && equalPrefix(head, m.prefix) {
			return m.name
		}
	}

	if len(head) == 0 {
		return "dat"
	}
	printable := 0
	for _, b := range head {
		if b >= 32 && b < 127 || b == '\n' || b == '\r' || b == '\t' {
			printable++
		}
	}
	if float64(printable)/float64(len(head)) >= 0.9 {
		return "txt"
	}
	return "dat"
}

// fileExtension returns the lowercased extension of name, or "" if it has
// none.
func fileExtension(name string) string {
	dot := -1
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			dot = i
			break
		}
		if name[i] == '_' && i == 0 {
			break
		}
	}
	if dot < 0 || dot == len(name)-1 {
		return ""
	}
	ext := name[dot+1:]
	out := make([]byte, len(ext))
	for i, b := range []byte(ext) {
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out[i] = b
	}
	return string(out)
}

func equalPrefix(data, prefix []byte) bool {
	for i, b := range prefix {
		if data[i] != b {
			return false
		}
	}
	return true
}
