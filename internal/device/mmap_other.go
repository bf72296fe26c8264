//go:build !linux && !darwin

package device

import "errors"

// Mapping mirrors the unix Mapping shape on platforms with no mmap support.
type Mapping struct {
	Data []byte
}

// Mmap is unavailable on this platform; callers should fall back to Read.
func (f *File) Mmap(offset int64, length int) (Mapping, error) {
	return Mapping{}, errors.New("device: mmap not supported on this platform")
}

// Munmap is a no-op companion to Mmap on this platform.
func Munmap(m Mapping) error {
	return nil
}
