// Package persist implements the external collaborators the recovery core
// deliberately has no knowledge of: writing a RecoveredFile's bytes to disk
// and computing its content hash. The core produces RecoveredFile values
// with an empty HashSHA256; this package is where that field gets filled
// in and where output_directory collisions get resolved.
package persist

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/shubham/filerecovery/internal/device"
	"github.com/shubham/filerecovery/internal/types"
)

// HashAlgorithm selects which digest Persister computes alongside writing
// a recovered file's bytes.
type HashAlgorithm int

const (
	// HashSHA256 is the default, broadly interoperable digest.
	HashSHA256 HashAlgorithm = iota
	// HashBLAKE3 is a faster alternative for large batches where
	// interoperability with external tooling is not a requirement.
	HashBLAKE3
)

// Persister writes recovered-file payloads to an output directory,
// resolving filename collisions and computing each file's hash as it is
// written.
type Persister struct {
	OutputDir string
	Algorithm HashAlgorithm
}

// New returns a Persister writing into outputDir with the default SHA-256
// hash.
func New(outputDir string) *Persister {
	return &Persister{OutputDir: outputDir, Algorithm: HashSHA256}
}

// Persist reads file's fragments from reader and writes them, concatenated
// in fragment order, to a file under p.OutputDir. It returns file with
// Filename and HashSHA256 updated to reflect the actual path written and
// computed digest.
func (p *Persister) Persist(reader device.Reader, file types.RecoveredFile) (types.RecoveredFile, error) {
	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return file, fmt.Errorf("persist: create output directory: %w", err)
	}

	path := p.resolveCollision(file.Filename)
	out, err := os.Create(path)
	if err != nil {
		return file, fmt.Errorf("persist: create %s: %w", path, err)
	}
	defer out.Close()

	h := p.newHasher()
	writer := io.MultiWriter(out, h)

	for _, frag := range file.Fragments {
		data, err := device.ReadFull(reader, int64(frag.Offset), int(frag.Size))
		if err != nil {
			return file, fmt.Errorf("persist: read fragment at %d: %w", frag.Offset, err)
		}
		if _, err := writer.Write(data); err != nil {
			return file, fmt.Errorf("persist: write %s: %w", path, err)
		}
	}

	file.Filename = filepath.Base(path)
	file.HashSHA256 = hex.EncodeToString(h.Sum(nil))
	return file, nil
}

func (p *Persister) newHasher() hash.Hash {
	if p.Algorithm == HashBLAKE3 {
		return blake3.New()
	}
	return sha256.New()
}

// resolveCollision returns a path under p.OutputDir guaranteed not to
// already exist, appending "_1", "_2", ... before the extension as needed.
func (p *Persister) resolveCollision(filename string) string {
	path := filepath.Join(p.OutputDir, filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(filename)
	base := filename[:len(filename)-len(ext)]
	for i := 1; ; i++ {
		candidate := filepath.Join(p.OutputDir, fmt.Sprintf("%s_%d%s", base, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
