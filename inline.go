package ext4fs

import (
	"encoding/binary"

	"github.com/gbuilds/ext4fs/disklayout"
)

// maxInlineDataLen is the number of content bytes available directly in
// i_block; inline_data files larger than this spill the remainder into
// an in-inode extended attribute named "system.data".
const maxInlineDataLen = 60

// xattrDataEntryName is the attribute name ext4 uses to hold inline
// data overflow.
const xattrDataEntryName = "data"

// readInlineData returns the full inline content of an inode flagged
// EXT4_INLINE_DATA. size is the inode's reported byte size.
func readInlineData(c *blockCache, sb *disklayout.SuperBlock, in *inode, size uint64) ([]byte, error) {
	data := in.Data()
	if size <= maxInlineDataLen {
		out := make([]byte, size)
		copy(out, data[:size])
		return out, nil
	}

	out := make([]byte, maxInlineDataLen, size)
	copy(out, data[:maxInlineDataLen])

	overflow, err := readInlineXattrOverflow(c, sb, in, size-maxInlineDataLen)
	if err != nil {
		return nil, err
	}
	out = append(out, overflow...)
	if uint64(len(out)) < size {
		return nil, corruptErr("inline data shorter than reported size")
	}
	return out[:size], nil
}

// readInlineXattrOverflow scans the in-inode extended attribute region
// (from OldInodeSize+4, just past i_extra_isize and i_checksum_hi, up to
// the record size) for the "data" entry holding inline-data overflow.
func readInlineXattrOverflow(c *blockCache, sb *disklayout.SuperBlock, in *inode, want uint64) ([]byte, error) {
	extraIsize := in.ExtraIsize()
	if extraIsize == 0 {
		return nil, corruptErr("inline data overflow requires inode extra space")
	}

	inodeSize := sb.InodeSize()
	// The ibody xattr region starts right after i_extra_isize's fixed
	// prefix: disklayout.OldInodeSize + 4 bytes (extra_isize + checksum_hi),
	// and runs to the end of the on-disk inode record.
	regionStart := disklayout.OldInodeSize + 4
	if uint16(regionStart) >= inodeSize {
		return nil, corruptErr("inode too small to hold inline data overflow")
	}
	regionLen := int(inodeSize) - regionStart

	region, err := c.readBytes(in.offset+uint64(regionStart), regionLen)
	if err != nil {
		return nil, err
	}

	// ibody xattrs begin with a 4-byte magic (0xea020000) then a packed
	// sequence of xattr_entry headers growing forward from the start,
	// with value bytes packed backward from the end of the region.
	const xattrMagic = 0xea020000
	if len(region) < 4 || binary.LittleEndian.Uint32(region[0:4]) != xattrMagic {
		return nil, corruptErr("missing inline data xattr header")
	}

	pos := 4
	for pos+16 <= len(region) {
		nameLen := int(region[pos])
		nameIndex := region[pos+1]
		valueOffset := binary.LittleEndian.Uint16(region[pos+2 : pos+4])
		valueBlock := binary.LittleEndian.Uint32(region[pos+4 : pos+8])
		valueSize := binary.LittleEndian.Uint32(region[pos+8 : pos+12])

		if nameLen == 0 && nameIndex == 0 {
			break // end-of-list marker
		}

		nameStart := pos + 16
		if nameStart+nameLen > len(region) {
			return nil, corruptErr("inline data xattr entry name overruns region")
		}
		name := string(region[nameStart : nameStart+nameLen])

		if name == xattrDataEntryName && valueBlock == 0 {
			vo := int(valueOffset)
			if vo < 0 || vo+int(valueSize) > len(region) {
				return nil, corruptErr("inline data xattr value overruns region")
			}
			got := region[vo : vo+int(valueSize)]
			if uint64(len(got)) < want {
				return nil, corruptErr("inline data xattr value shorter than expected")
			}
			return got[:want], nil
		}

		entrySize := 16 + nameLen
		pad := (4 - entrySize%4) % 4
		pos += entrySize + pad
	}

	return nil, corruptErr("inline data overflow attribute not found")
}
