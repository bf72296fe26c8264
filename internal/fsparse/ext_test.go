package fsparse

import (
	"encoding/binary"
	"testing"
)

func ext2Image(groups uint32) []byte {
	blockSize := uint32(1024)
	inodesPerGroup := uint32(32)
	blocksPerGroup := uint32(8192)
	totalBlocks := blocksPerGroup * groups

	size := 2048 + uint64(groups)*32 + uint64(blockSize)*10
	data := make([]byte, size)

	sb := data[extSuperblockOffset : extSuperblockOffset+1024]
	binary.LittleEndian.PutUint32(sb[0x00:0x04], inodesPerGroup*groups)
	binary.LittleEndian.PutUint32(sb[0x04:0x08], totalBlocks)
	binary.LittleEndian.PutUint32(sb[0x14:0x18], 1) // first data block
	binary.LittleEndian.PutUint32(sb[0x18:0x1C], 0) // log block size -> 1024
	binary.LittleEndian.PutUint32(sb[0x20:0x24], blocksPerGroup)
	binary.LittleEndian.PutUint32(sb[0x28:0x2C], inodesPerGroup)
	binary.LittleEndian.PutUint16(sb[0x38:0x3A], extMagic)
	binary.LittleEndian.PutUint32(sb[0x4C:0x50], 1) // rev level dynamic
	binary.LittleEndian.PutUint16(sb[0x58:0x5A], 128)

	return data
}

func TestExtCanParse(t *testing.T) {
	data := ext2Image(1)
	p := &ExtParser{}
	if !p.CanParse(data) {
		t.Fatalf("CanParse rejected a valid ext2 superblock")
	}
}

func TestExtRejectsBadMagic(t *testing.T) {
	data := ext2Image(1)
	binary.LittleEndian.PutUint16(data[extSuperblockOffset+0x38:extSuperblockOffset+0x3A], 0)
	p := &ExtParser{}
	if p.CanParse(data) {
		t.Errorf("CanParse accepted a superblock with a bad magic")
	}
}

func TestExtVersionDiscrimination(t *testing.T) {
	data := ext2Image(1)
	p := &ExtParser{}
	if !p.Init(data) {
		t.Fatalf("init failed")
	}
	if p.FSType().String() != "ext2" {
		t.Errorf("fs type = %v, want ext2", p.FSType())
	}

	binary.LittleEndian.PutUint32(data[extSuperblockOffset+0x5C:extSuperblockOffset+0x60], extFeatureCompatHasJournal)
	p2 := &ExtParser{}
	p2.Init(data)
	if p2.FSType().String() != "ext3" {
		t.Errorf("fs type = %v, want ext3", p2.FSType())
	}

	binary.LittleEndian.PutUint32(data[extSuperblockOffset+0x60:extSuperblockOffset+0x64], extFeatureIncompatExtents)
	p3 := &ExtParser{}
	p3.Init(data)
	if p3.FSType().String() != "ext4" {
		t.Errorf("fs type = %v, want ext4", p3.FSType())
	}
}

func TestExtInodeDeletedCriteria(t *testing.T) {
	in := extInode{
		mode:       extModeRegular,
		sizeLo:     4096,
		dtime:      12345,
		linksCount: 0,
		blocksLo:   8,
	}
	if !in.isDeletedRegularFile() {
		t.Errorf("expected inode to qualify as a deleted regular file")
	}

	live := in
	live.dtime = 0
	if live.isDeletedRegularFile() {
		t.Errorf("dtime=0 must not qualify")
	}

	linked := in
	linked.linksCount = 1
	if linked.isDeletedRegularFile() {
		t.Errorf("nonzero links_count must not qualify")
	}
}
