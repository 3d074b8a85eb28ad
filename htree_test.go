package ext4fs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gbuilds/ext4fs/disklayout"
)

func TestInternalNodeSingleEntryCoversEveryHash(t *testing.T) {
	raw := make([]byte, dxEntrySize)
	binary.LittleEndian.PutUint32(raw[4:8], 7) // entry 0's block, hash implicitly 0

	node, err := newInternalNode(raw, 1)
	if err != nil {
		t.Fatalf("newInternalNode: %v", err)
	}
	block, ok := node.lookupBlockByHash(0xffffffff)
	if !ok || block != 7 {
		t.Errorf("lookupBlockByHash = (%d, %v), want (7, true)", block, ok)
	}
}

func TestInternalNodeBinarySearchPicksCoveringRange(t *testing.T) {
	raw := make([]byte, 3*dxEntrySize)
	binary.LittleEndian.PutUint32(raw[4:8], 100) // entry 0: hash 0, block 100
	binary.LittleEndian.PutUint32(raw[8:12], 50)
	binary.LittleEndian.PutUint32(raw[12:16], 200) // entry 1: hash 50, block 200
	binary.LittleEndian.PutUint32(raw[16:20], 90)
	binary.LittleEndian.PutUint32(raw[20:24], 300) // entry 2: hash 90, block 300

	node, err := newInternalNode(raw, 3)
	if err != nil {
		t.Fatalf("newInternalNode: %v", err)
	}
	cases := []struct {
		hash uint32
		want uint32
	}{
		{0, 100},
		{49, 100},
		{50, 200},
		{89, 200},
		{90, 300},
		{1000, 300},
	}
	for _, tc := range cases {
		block, ok := node.lookupBlockByHash(tc.hash)
		if !ok || block != tc.want {
			t.Errorf("lookupBlockByHash(%d) = (%d, %v), want (%d, true)", tc.hash, block, ok, tc.want)
		}
	}
}

func TestNewInternalNodeRejectsOverrunningCount(t *testing.T) {
	_, err := newInternalNode(make([]byte, dxEntrySize), 5)
	if err == nil {
		t.Fatal("expected error when count*8 exceeds the supplied block")
	}
}

// buildHTreeImage assembles a one-level (depth 0) indexed directory:
// logical block 0 is the dx_root block with a single index entry
// covering every hash, pointing at logical block 1, a plain leaf block
// holding the real entries.
func buildHTreeImage(t *testing.T) (*fs, *inode) {
	t.Helper()
	const blockSize = 1024

	root := make([]byte, blockSize)
	writeDirent(root, 0, 2, ".", 2, 12)
	writeDirent(root, 12, 2, "..", 2, 12)
	root[dxRootInfoOffset+4] = byte(hashLegacyUnsigned) // hash_version
	root[dxRootInfoOffset+6] = 0                        // indirect_levels (depth)
	binary.LittleEndian.PutUint16(root[dxRootEntriesOffset+2:dxRootEntriesOffset+4], 1)
	binary.LittleEndian.PutUint32(root[dxRootEntriesOffset+4:dxRootEntriesOffset+8], 1) // entry0 -> logical block 1

	leaf := make([]byte, blockSize)
	writeDirent(leaf, 0, 2, ".", 2, 12)
	writeDirent(leaf, 12, 2, "..", 2, 12)
	writeDirent(leaf, 24, 11, "hello.txt", 1, blockSize-24)

	disk := make([]byte, blockSize*3)
	copy(disk[1*blockSize:], root)
	copy(disk[2*blockSize:], leaf)

	iBlock := append(encodeExtentHeader(1, 0), encodeExtentLeaf(0, 2, 1)...)
	buf := make([]byte, disklayout.OldInodeSize)
	binary.LittleEndian.PutUint32(buf[32:36], uint32(disklayout.InodeFlagExtents))
	copy(buf[40:40+60], iBlock)
	rawInode, err := disklayout.ParseInode(11, buf, disklayout.OldInodeSize)
	if err != nil {
		t.Fatalf("ParseInode: %v", err)
	}

	sbRaw := make([]byte, disklayout.SuperBlockSize)
	binary.LittleEndian.PutUint16(sbRaw[56:58], disklayout.SuperBlockMagic)
	binary.LittleEndian.PutUint32(sbRaw[96:100], uint32(disklayout.IncompatFileType))
	sb, err := disklayout.ParseSuperBlock(sbRaw)
	if err != nil {
		t.Fatalf("ParseSuperBlock: %v", err)
	}

	cache := newBlockCache(bytes.NewReader(disk), blockSize, DefaultCacheBlocks, nil)
	return &fs{cache: cache, sb: sb}, &inode{Inode: rawInode}
}

func TestLookupHTreeFindsEntry(t *testing.T) {
	f, in := buildHTreeImage(t)

	e, ok, err := f.lookupHTree(in, "hello.txt")
	if err != nil {
		t.Fatalf("lookupHTree: %v", err)
	}
	if !ok || e.Inode != 11 || e.Name != "hello.txt" {
		t.Fatalf("lookupHTree(hello.txt) = (%+v, %v), want a match on inode 11", e, ok)
	}
}

func TestLookupHTreeMissingNameReportsNotFound(t *testing.T) {
	f, in := buildHTreeImage(t)

	_, ok, err := f.lookupHTree(in, "nope.txt")
	if err != nil {
		t.Fatalf("lookupHTree: %v", err)
	}
	if ok {
		t.Fatal("expected no match for a name absent from the leaf block")
	}
}

func TestLookupHTreeResolvesDotEntries(t *testing.T) {
	f, in := buildHTreeImage(t)

	e, ok, err := f.lookupHTree(in, "..")
	if err != nil {
		t.Fatalf("lookupHTree: %v", err)
	}
	if !ok || e.Inode != 2 || e.Name != ".." {
		t.Fatalf("lookupHTree(..) = (%+v, %v), want the dotdot entry", e, ok)
	}
}
