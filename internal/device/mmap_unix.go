//go:build linux || darwin

package device

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Mapping is a live memory mapping returned by Mmap. Data is the
// caller-requested window; the mapping, including any leading page-alignment
// padding, is released in full by Munmap.
type Mapping struct {
	Data []byte
	full []byte
}

// Mmap maps length bytes starting at offset from the device's file
// descriptor. offset is rounded down to the nearest page boundary internally
// and Mapping.Data is sliced to start exactly at the requested offset,
// matching the DeviceReader contract's "offsets are page-aligned by the
// implementation" clause.
func (f *File) Mmap(offset int64, length int) (Mapping, error) {
	pageSize := int64(unix.Getpagesize())
	aligned := (offset / pageSize) * pageSize
	pad := int(offset - aligned)

	full, err := unix.Mmap(int(f.file.Fd()), aligned, length+pad, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return Mapping{}, fmt.Errorf("device: mmap at %d: %w", offset, err)
	}
	return Mapping{Data: full[pad:], full: full}, nil
}

// Munmap unmaps a Mapping previously returned by Mmap.
func Munmap(m Mapping) error {
	if m.full == nil {
		return nil
	}
	if err := unix.Munmap(m.full); err != nil {
		return fmt.Errorf("device: munmap: %w", err)
	}
	return nil
}
