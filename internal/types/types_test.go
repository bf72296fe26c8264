package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFile() RecoveredFile {
	return RecoveredFile{
		Filename:        "recovered.jpg",
		FileType:        "jpg",
		StartOffset:     100,
		FileSize:        50,
		ConfidenceScore: 0.8,
		Fragments:       []Fragment{{Offset: 100, Size: 50}},
	}
}

func TestValidateAcceptsWellFormedRecord(t *testing.T) {
	require.NoError(t, validFile().Validate(1<<20))
}

func TestValidateRejectsZeroSize(t *testing.T) {
	f := validFile()
	f.FileSize = 0
	assert.Error(t, f.Validate(1<<20), "Validate accepted file_size == 0")
}

func TestValidateRejectsOutOfBoundsRange(t *testing.T) {
	f := validFile()
	f.StartOffset = 1 << 20
	assert.Error(t, f.Validate(1<<20), "Validate accepted a range exceeding device size")
}

func TestValidateRejectsConfidenceOutOfRange(t *testing.T) {
	f := validFile()
	f.ConfidenceScore = 1.5
	assert.Error(t, f.Validate(1<<20), "Validate accepted confidence outside [0,1]")
}

func TestValidateRejectsFragmentSumMismatch(t *testing.T) {
	f := validFile()
	f.Fragments = []Fragment{{Offset: 100, Size: 30}}
	assert.Error(t, f.Validate(1<<20), "Validate accepted fragments summing to less than file_size")
}

func TestValidateRejectsSingleFragmentMismatch(t *testing.T) {
	f := validFile()
	f.Fragments = []Fragment{{Offset: 200, Size: 50}}
	assert.Error(t, f.Validate(1<<20), "Validate accepted a single fragment not equal to (start_offset, file_size)")
}

func TestValidateRejectsOverlappingFragments(t *testing.T) {
	f := validFile()
	f.FileSize = 80
	f.IsFragmented = true
	f.Fragments = []Fragment{
		{Offset: 100, Size: 50},
		{Offset: 120, Size: 30},
	}
	assert.Error(t, f.Validate(1<<20), "Validate accepted overlapping fragments")
}

func TestValidateRejectsInconsistentIsFragmented(t *testing.T) {
	f := validFile()
	f.FileSize = 80
	f.Fragments = []Fragment{
		{Offset: 100, Size: 50},
		{Offset: 150, Size: 30},
	}
	f.IsFragmented = false
	assert.Error(t, f.Validate(1<<20), "Validate accepted is_fragmented=false with 2 fragments")
}

func TestValidateRejectsFragmentOutOfDeviceBounds(t *testing.T) {
	f := validFile()
	assert.Error(t, f.Validate(120), "Validate accepted a fragment exceeding device size")
}
