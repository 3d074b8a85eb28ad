package disklayout

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// rawInodeOld is the 128-byte ext2/ext3-style inode record.
type rawInodeOld struct {
	ModeRaw              uint16
	UIDLo                uint16
	SizeLo               uint32
	AccessTimeRaw        int32
	ChangeTimeRaw        int32
	ModificationTimeRaw  int32
	DeletionTimeRaw      int32
	GIDLo                uint16
	LinksCountRaw        uint16
	BlocksCountLo        uint32
	FlagsRaw             uint32
	VersionLo            uint32
	DataRaw              [60]byte
	Generation           uint32
	FileACLLo            uint32
	SizeHi               uint32
	ObsoFaddr            uint32
	BlocksCountHi        uint16
	FileACLHi            uint16
	UIDHi                uint16
	GIDHi                uint16
	ChecksumLo           uint16
	_                    uint16
}

// rawInodeExtra holds the fields that follow rawInodeOld when the on-disk
// inode record is larger than OldInodeSize (i.e. i_extra_isize > 0).
type rawInodeExtra struct {
	ExtraIsize   uint16
	ChecksumHi   uint16
	CtimeExtra   uint32
	MtimeExtra   uint32
	AtimeExtra   uint32
	Crtime       uint32
	CrtimeExtra  uint32
	VersionHi    uint32
	Projid       uint32
}

// Inode is a decoded on-disk inode record, transparently exposing the
// extra 256-byte fields as zero when the record is the legacy 128-byte
// size.
type Inode struct {
	Index uint32

	old      rawInodeOld
	extra    rawInodeExtra
	hasExtra bool

	// data60 is a copy of the 60-byte i_block union used for indirect
	// block pointers, extent tree root, inline data, or symlink target.
	data60 [60]byte
}

// ParseInode decodes an inode record of exactly recordSize bytes
// (InodeSize from the superblock; recordSize >= OldInodeSize).
func ParseInode(index uint32, b []byte, recordSize uint16) (*Inode, error) {
	if len(b) < int(recordSize) {
		return nil, fmt.Errorf("disklayout: inode buffer too short: %d < %d", len(b), recordSize)
	}
	in := &Inode{Index: index}
	r := bytes.NewReader(b)
	if err := binary.Read(r, binary.LittleEndian, &in.old); err != nil {
		return nil, fmt.Errorf("disklayout: inode decode: %w", err)
	}
	in.data60 = in.old.DataRaw

	if recordSize > OldInodeSize {
		// i_extra_isize itself is the first two bytes past the old
		// record; peek at it before deciding how much more to read.
		extraBytes := b[OldInodeSize:recordSize]
		if len(extraBytes) >= 2 {
			extraIsize := binary.LittleEndian.Uint16(extraBytes)
			avail := len(extraBytes)
			need := int(extraIsize)
			if need > avail {
				need = avail
			}
			if need >= 2 {
				// Decode from a zero-filled copy the size of the full
				// rawInodeExtra struct, tolerating a record shorter than
				// it (only extra_isize is guaranteed): fields past
				// i_extra_isize read as zero.
				extraBuf := make([]byte, binary.Size(in.extra))
				copy(extraBuf, extraBytes[:need])
				_ = binary.Read(bytes.NewReader(extraBuf), binary.LittleEndian, &in.extra)
				in.hasExtra = true
			}
		}
	}

	return in, nil
}

func (in *Inode) Mode() uint16 { return in.old.ModeRaw }

func (in *Inode) UID() uint32 { return uint32(in.old.UIDHi)<<16 | uint32(in.old.UIDLo) }
func (in *Inode) GID() uint32 { return uint32(in.old.GIDHi)<<16 | uint32(in.old.GIDLo) }

// Size returns the 64-bit file size, combining i_size_lo and the
// high-order half (i_size_high for regular files, formerly i_dir_acl).
func (in *Inode) Size() uint64 {
	return uint64(in.old.SizeHi)<<32 | uint64(in.old.SizeLo)
}

func (in *Inode) LinksCount() uint16 { return in.old.LinksCountRaw }

func (in *Inode) Flags() InodeFlags { return InodeFlags(in.old.FlagsRaw) }

func (in *Inode) Generation() uint32 { return in.old.Generation }

// FileACL returns the block number holding this inode's extended
// attributes, or 0 if none.
func (in *Inode) FileACL() uint64 {
	return uint64(in.old.FileACLHi)<<32 | uint64(in.old.FileACLLo)
}

// BlocksCount returns the number of 512-byte sectors allocated to this
// inode, combining i_blocks_lo with its l_i_blocks_hi extension.
func (in *Inode) BlocksCount() uint64 {
	return uint64(in.old.BlocksCountHi)<<32 | uint64(in.old.BlocksCountLo)
}

// Data returns the raw 60-byte i_block union: either 15 4-byte block
// pointers (indirect-block layout), an extent-tree root node, inline
// file data, or a fast-symlink target, depending on the inode's flags
// and file type.
func (in *Inode) Data() []byte { return in.data60[:] }

func (in *Inode) ChecksumLo() uint16 { return in.old.ChecksumLo }

func (in *Inode) ChecksumHi() uint16 {
	if !in.hasExtra {
		return 0
	}
	return in.extra.ChecksumHi
}

// Checksum returns the full 32-bit inode checksum: the low half always
// exists, the high half only when the inode record is large enough to
// carry it.
func (in *Inode) Checksum() uint32 {
	return uint32(in.ChecksumHi())<<16 | uint32(in.ChecksumLo())
}

func (in *Inode) ExtraIsize() uint16 {
	if !in.hasExtra {
		return 0
	}
	return in.extra.ExtraIsize
}

func (in *Inode) CrtimeRaw() (uint32, uint32) {
	if !in.hasExtra {
		return 0, 0
	}
	return in.extra.Crtime, in.extra.CrtimeExtra
}

func (in *Inode) AtimeRaw() (int32, uint32) {
	extra := uint32(0)
	if in.hasExtra {
		extra = in.extra.AtimeExtra
	}
	return in.old.AccessTimeRaw, extra
}

func (in *Inode) MtimeRaw() (int32, uint32) {
	extra := uint32(0)
	if in.hasExtra {
		extra = in.extra.MtimeExtra
	}
	return in.old.ModificationTimeRaw, extra
}

func (in *Inode) CtimeRaw() (int32, uint32) {
	extra := uint32(0)
	if in.hasExtra {
		extra = in.extra.CtimeExtra
	}
	return in.old.ChangeTimeRaw, extra
}

// IsDir, IsRegular, IsSymlink report the inode's file type from its mode.
func (in *Inode) IsDir() bool     { return IsDir(in.old.ModeRaw) }
func (in *Inode) IsRegular() bool { return IsRegular(in.old.ModeRaw) }
func (in *Inode) IsSymlink() bool { return IsSymlink(in.old.ModeRaw) }
