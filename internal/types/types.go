// Package types holds the value types shared across every component of the
// recovery core: the recovered-file record, scan configuration, and the
// filesystem/status enumerations.
package types

import (
	"fmt"
	"strings"
)

// FileSystemType tags the family of on-disk structures a RecoveredFile or
// detection result is associated with.
type FileSystemType int

const (
	FSUnknown FileSystemType = iota
	FSExt2
	FSExt3
	FSExt4
	FSNTFS
	FSFAT12
	FSFAT16
	FSFAT32
	FSExFAT
	FSBTRFS
	FSXFS
	FSHFSPlus
	FSAPFS
	FSRaw
)

func (t FileSystemType) String() string {
	switch t {
	case FSExt2:
		return "ext2"
	case FSExt3:
		return "ext3"
	case FSExt4:
		return "ext4"
	case FSNTFS:
		return "NTFS"
	case FSFAT12:
		return "FAT12"
	case FSFAT16:
		return "FAT16"
	case FSFAT32:
		return "FAT32"
	case FSExFAT:
		return "exFAT"
	case FSBTRFS:
		return "Btrfs"
	case FSXFS:
		return "XFS"
	case FSHFSPlus:
		return "HFS+"
	case FSAPFS:
		return "APFS"
	case FSRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// RecoveryStatus is the top-level outcome of a recovery run.
type RecoveryStatus int

const (
	StatusSuccess RecoveryStatus = iota
	StatusPartialSuccess
	StatusFailed
	StatusAccessDenied
	StatusDeviceNotFound
	StatusInsufficientSpace
)

func (s RecoveryStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartialSuccess:
		return "partial_success"
	case StatusFailed:
		return "failed"
	case StatusAccessDenied:
		return "access_denied"
	case StatusDeviceNotFound:
		return "device_not_found"
	case StatusInsufficientSpace:
		return "insufficient_space"
	default:
		return "unknown"
	}
}

// Fragment is a contiguous byte range on the source device belonging to one
// reconstructed file.
type Fragment struct {
	Offset uint64
	Size   uint64
}

// RecoveredFile is the sole cross-component value type produced by parsers
// and format engines, and consumed by the recovery engine and the external
// persister.
type RecoveredFile struct {
	Filename        string
	FileType        string
	StartOffset     uint64
	FileSize        uint64
	ConfidenceScore float64
	IsFragmented    bool
	Fragments       []Fragment
	HashSHA256      string // filled by an external collaborator, never by the core
}

// Validate checks the invariants spec.md §3/§8 require of every
// RecoveredFile before it leaves the component that produced it.
func (r RecoveredFile) Validate(deviceSize uint64) error {
	if r.FileSize == 0 {
		return fmt.Errorf("recovered file %q: file_size must be > 0", r.Filename)
	}
	if r.StartOffset+r.FileSize > deviceSize {
		return fmt.Errorf("recovered file %q: range [%d,%d) exceeds device size %d",
			r.Filename, r.StartOffset, r.StartOffset+r.FileSize, deviceSize)
	}
	if r.ConfidenceScore < 0.0 || r.ConfidenceScore > 1.0 {
		return fmt.Errorf("recovered file %q: confidence %f out of [0,1]", r.Filename, r.ConfidenceScore)
	}
	var sum uint64
	for i, f := range r.Fragments {
		if f.Offset+f.Size > deviceSize {
			return fmt.Errorf("recovered file %q: fragment %d out of device bounds", r.Filename, i)
		}
		for j, g := range r.Fragments {
			if i == j {
				continue
			}
			if f.Offset < g.Offset+g.Size && g.Offset < f.Offset+f.Size {
				return fmt.Errorf("recovered file %q: fragments %d and %d overlap", r.Filename, i, j)
			}
		}
		sum += f.Size
	}
	if len(r.Fragments) > 0 && sum != r.FileSize {
		return fmt.Errorf("recovered file %q: fragment sizes sum to %d, want %d", r.Filename, sum, r.FileSize)
	}
	if len(r.Fragments) == 1 {
		f := r.Fragments[0]
		if f.Offset != r.StartOffset || f.Size != r.FileSize {
			return fmt.Errorf("recovered file %q: single fragment must equal (start_offset, file_size)", r.Filename)
		}
	}
	if (len(r.Fragments) > 1) != r.IsFragmented {
		return fmt.Errorf("recovered file %q: is_fragmented inconsistent with fragment count", r.Filename)
	}
	return nil
}

// ScanConfig is the immutable configuration a recovery engine owns for the
// duration of one run.
type ScanConfig struct {
	DevicePath          string
	OutputPath          string
	TargetFileTypes     []string // empty = all
	UseMetadataRecovery bool
	UseSignatureRecovery bool
	NumThreads          int // 0 = auto
	ChunkSize           int64
	VerboseLogging      bool
}

// DefaultChunkSize is the 1 MiB chunk used when ScanConfig.ChunkSize is zero.
const DefaultChunkSize int64 = 1 << 20

// Normalized returns a copy of cfg with zero-valued fields replaced by their
// documented defaults.
func (cfg ScanConfig) Normalized() ScanConfig {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return cfg
}

// WantsType reports whether ft passes the configured target-type filter.
// An empty filter matches everything; matching ignores case.
func (cfg ScanConfig) WantsType(ft string) bool {
	if len(cfg.TargetFileTypes) == 0 {
		return true
	}
	for _, t := range cfg.TargetFileTypes {
		if strings.EqualFold(t, ft) {
			return true
		}
	}
	return false
}
