package ext4fs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gbuilds/ext4fs/disklayout"
)

// buildInlineOverflowImage assembles a one-block disk image containing a
// single 256-byte inode record at byte offset 512: 60 bytes of direct
// inline data in i_block, plus an ibody xattr region holding a "data"
// entry with the overflow tail.
func buildInlineOverflowImage(t *testing.T, content []byte) (*blockCache, *inode, *disklayout.SuperBlock) {
	t.Helper()
	const blockSize = 1024
	const inodeOffset = 512
	const inodeSize = 256

	if len(content) <= maxInlineDataLen {
		t.Fatalf("test requires content longer than %d bytes", maxInlineDataLen)
	}
	overflow := content[maxInlineDataLen:]

	buf := make([]byte, inodeSize)
	copy(buf[40:40+maxInlineDataLen], content[:maxInlineDataLen])
	binary.LittleEndian.PutUint16(buf[128:130], 4) // i_extra_isize, just needs to be nonzero

	const regionStart = disklayout.OldInodeSize + 4 // 132
	regionLen := inodeSize - regionStart
	region := buf[regionStart : regionStart+regionLen]
	binary.LittleEndian.PutUint32(region[0:4], 0xea020000)

	const nameLen = 4
	region[4] = nameLen
	region[5] = 0 // name_index
	valueOffset := regionLen - len(overflow)
	binary.LittleEndian.PutUint16(region[6:8], uint16(valueOffset))
	binary.LittleEndian.PutUint32(region[8:12], 0) // value in this inode, not a separate block
	binary.LittleEndian.PutUint32(region[12:16], uint32(len(overflow)))
	// bytes [16:20) are the entry's hash slot, unused here; the name follows at 20.
	copy(region[20:24], "data")
	copy(region[valueOffset:], overflow)

	raw, err := disklayout.ParseInode(7, buf, inodeSize)
	if err != nil {
		t.Fatalf("ParseInode: %v", err)
	}

	image := make([]byte, blockSize)
	copy(image[inodeOffset:], buf)
	cache := newBlockCache(bytes.NewReader(image), blockSize, DefaultCacheBlocks, nil)

	sbBytes := encodeRawSuperBlock(0, 1, inodeSize, 0, 0)
	sb, err := disklayout.ParseSuperBlock(sbBytes)
	if err != nil {
		t.Fatalf("ParseSuperBlock: %v", err)
	}

	return cache, &inode{Inode: raw, offset: inodeOffset}, sb
}

func TestReadInlineDataFitsDirectly(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 40)
	buf := make([]byte, disklayout.OldInodeSize)
	copy(buf[40:40+len(content)], content)
	raw, err := disklayout.ParseInode(1, buf, disklayout.OldInodeSize)
	if err != nil {
		t.Fatalf("ParseInode: %v", err)
	}
	short := &inode{Inode: raw}

	got, err := readInlineData(nil, nil, short, uint64(len(content)))
	if err != nil {
		t.Fatalf("readInlineData: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("got %q, want %q", got, content)
	}
}

func TestReadInlineDataOverflow(t *testing.T) {
	content := append(bytes.Repeat([]byte("a"), maxInlineDataLen), []byte("overflow!!")...)
	cache, in, sb := buildInlineOverflowImage(t, content)

	got, err := readInlineData(cache, sb, in, uint64(len(content)))
	if err != nil {
		t.Fatalf("readInlineData: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("got %q, want %q", got, content)
	}
}

func TestReadInlineXattrOverflowRejectsMissingMagic(t *testing.T) {
	content := append(bytes.Repeat([]byte("a"), maxInlineDataLen), []byte("overflow!!")...)
	cache, in, sb := buildInlineOverflowImage(t, content)

	const blockSize = 1024
	image, err := cache.readBytes(0, blockSize)
	if err != nil {
		t.Fatalf("readBytes: %v", err)
	}
	corrupted := append([]byte(nil), image...)
	binary.LittleEndian.PutUint32(corrupted[512+132:512+136], 0)
	cache2 := newBlockCache(bytes.NewReader(corrupted), blockSize, DefaultCacheBlocks, nil)

	if _, err := readInlineXattrOverflow(cache2, sb, in, 10); err == nil {
		t.Fatal("expected error for a missing xattr magic")
	}
}

func TestReadInlineXattrOverflowRejectsMissingAttribute(t *testing.T) {
	content := append(bytes.Repeat([]byte("a"), maxInlineDataLen), []byte("overflow!!")...)
	cache, in, sb := buildInlineOverflowImage(t, content)

	const blockSize = 1024
	image, err := cache.readBytes(0, blockSize)
	if err != nil {
		t.Fatalf("readBytes: %v", err)
	}
	corrupted := append([]byte(nil), image...)
	copy(corrupted[512+132+20:512+132+24], "oops") // rename the stored attribute
	cache2 := newBlockCache(bytes.NewReader(corrupted), blockSize, DefaultCacheBlocks, nil)

	if _, err := readInlineXattrOverflow(cache2, sb, in, 10); err == nil {
		t.Fatal("expected error when the inline data attribute is absent")
	}
}
