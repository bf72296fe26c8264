package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shubham/filerecovery/internal/types"
)

type fakeReader struct{ data []byte }

func (r *fakeReader) Size() int64 { return int64(len(r.data)) }
func (r *fakeReader) Close() error { return nil }
func (r *fakeReader) Read(offset int64, buf []byte) (int, error) {
	if offset >= int64(len(r.data)) {
		return 0, nil
	}
	return copy(buf, r.data[offset:]), nil
}

func TestPersistWritesFile(t *testing.T) {
	dir := t.TempDir()
	reader := &fakeReader{data: []byte("hello world payload")}
	p := New(dir)

	file := types.RecoveredFile{
		Filename:    "recovered_0000000000000000.txt",
		FileType:    "txt",
		StartOffset: 0,
		FileSize:    11,
		Fragments:   []types.Fragment{{Offset: 0, Size: 11}},
	}

	out, err := p.Persist(reader, file)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if out.HashSHA256 == "" {
		t.Errorf("expected a non-empty hash")
	}

	data, err := os.ReadFile(filepath.Join(dir, out.Filename))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("got %q, want %q", data, "hello world")
	}
}

func TestPersistCollisionResolution(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "recovered_0000000000000000.txt"), []byte("existing"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	reader := &fakeReader{data: []byte("new content")}
	p := New(dir)
	file := types.RecoveredFile{
		Filename:  "recovered_0000000000000000.txt",
		Fragments: []types.Fragment{{Offset: 0, Size: 11}},
		FileSize:  11,
	}

	out, err := p.Persist(reader, file)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if out.Filename == "recovered_0000000000000000.txt" {
		t.Errorf("expected collision-resolved filename, got original")
	}
}
