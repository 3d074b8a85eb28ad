package ext4fs

import (
	"github.com/gbuilds/ext4fs/crc32c"
	"github.com/gbuilds/ext4fs/disklayout"
)

// inode wraps a decoded disklayout.Inode together with the byte offset
// its on-disk record lives at, needed by the inline-data xattr overflow
// path to re-read the record's tail.
type inode struct {
	*disklayout.Inode
	offset uint64
}

// inodeByteOffset computes the absolute byte offset of inode ino's
// on-disk record, without reading it.
func inodeByteOffset(sb *disklayout.SuperBlock, gdt *groupDescTable, ino uint32) (uint64, error) {
	if ino == 0 {
		return 0, corruptErr("inode number 0 is not valid")
	}
	inodesPerGroup := sb.InodesPerGroup()
	if inodesPerGroup == 0 {
		return 0, corruptErr("inodes_per_group is zero")
	}

	groupIdx := int((ino - 1) / inodesPerGroup)
	indexInGroup := uint64((ino - 1) % inodesPerGroup)

	gd, err := gdt.group(groupIdx)
	if err != nil {
		return 0, err
	}

	inodeSize := sb.InodeSize()
	blockSize := blockSizeOf(sb)
	tableStart := gd.InodeTable() * uint64(blockSize)
	return tableStart + indexInGroup*uint64(inodeSize), nil
}

// readInode loads and decodes inode number ino (1-based, as on disk).
func readInode(c *blockCache, sb *disklayout.SuperBlock, gdt *groupDescTable, ino uint32) (*inode, error) {
	off, err := inodeByteOffset(sb, gdt, ino)
	if err != nil {
		return nil, err
	}
	inodeSize := sb.InodeSize()

	buf, err := c.readBytes(off, int(inodeSize))
	if err != nil {
		return nil, err
	}

	raw, err := disklayout.ParseInode(ino, buf, inodeSize)
	if err != nil {
		return nil, corruptErr(err.Error())
	}

	if err := verifyInodeChecksum(sb, raw, buf); err != nil {
		return nil, err
	}

	if raw.Flags().Has(disklayout.InodeFlagEncrypt) {
		return nil, newErr(KindEncrypted, "")
	}

	return &inode{Inode: raw, offset: off}, nil
}

// verifyInodeChecksum validates the inode checksum when
// metadata_csum is enabled. The checksum covers a seed (the
// filesystem's checksum seed, chained with the inode number and
// generation) followed by the on-disk inode bytes with the checksum
// fields themselves treated as zero.
func verifyInodeChecksum(sb *disklayout.SuperBlock, in *disklayout.Inode, raw []byte) error {
	if !sb.FeatureROCompat().Has(disklayout.RoCompatMetadataCsum) {
		return nil
	}
	seed, ok := sb.ChecksumSeed()
	if !ok {
		uuid := sb.UUID()
		seed = crc32c.Checksum(uuid[:])
	}

	d := crc32c.NewSeeded(seed)
	d.WriteUint32LE(in.Index)
	d.WriteUint32LE(in.Generation())

	masked := make([]byte, len(raw))
	copy(masked, raw)
	zeroInodeChecksumFields(masked, in.ExtraIsize())
	_, _ = d.Write(masked)

	want := in.Checksum()
	got := d.Sum32()
	if in.ExtraIsize() == 0 {
		got &= 0xffff // only the low half exists on disk
		want &= 0xffff
	}
	if got != want {
		return corruptErr("inode checksum mismatch")
	}
	return nil
}

// zeroInodeChecksumFields zeroes the osd2.l_i_checksum_lo field (at
// byte offset 0x7c) and, when the inode record is large enough, the
// i_checksum_hi field (immediately after i_extra_isize) before the
// checksum is computed over the buffer.
func zeroInodeChecksumFields(b []byte, extraIsize uint16) {
	const checksumLoOffset = 0x7c
	if len(b) >= checksumLoOffset+2 {
		b[checksumLoOffset] = 0
		b[checksumLoOffset+1] = 0
	}
	const checksumHiOffset = disklayout.OldInodeSize + 2
	if extraIsize > 0 && len(b) >= checksumHiOffset+2 {
		b[checksumHiOffset] = 0
		b[checksumHiOffset+1] = 0
	}
}
