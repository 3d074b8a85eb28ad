// Package disklayout contains types that mirror the on-disk structures of
// the ext2/ext3/ext4 filesystem format: superblocks, block-group
// descriptors, inodes, directory entries and extent-tree nodes.
//
// Multiple wire variants exist for several of these structures (32-bit vs
// 64-bit block-group descriptors, old vs new inodes, old vs new directory
// entries). Each structure decodes all of its variants into a single Go
// type whose accessors hide the difference, so that the rest of the
// module can be agnostic to which on-disk revision produced it.
//
// All multi-byte integers on disk are little-endian; this package decodes
// them with encoding/binary's LittleEndian byte order.
package disklayout

const (
	// SuperBlockOffset is the byte offset of the superblock from the start
	// of the filesystem image. It never moves, even for larger block sizes.
	SuperBlockOffset = 1024

	// SuperBlockSize is the number of on-disk bytes occupied by the
	// superblock structure (both 32-bit and 64-bit variants; extra fields
	// in the 64-bit variant are drawn from padding reserved in the 32-bit
	// layout).
	SuperBlockSize = 1024

	// SuperBlockMagic is the expected value of the s_magic field.
	SuperBlockMagic = 0xef53

	// MinBlockLogSize and MaxBlockLogSize bound s_log_block_size: the
	// block size is 1024 << s_log_block_size, giving a range of 1KiB to
	// 64KiB.
	MinBlockLogSize = 0
	MaxBlockLogSize = 6

	// OldInodeSize is the on-disk size of an ext2/ext3-style inode record.
	OldInodeSize = 128

	// RootDirInode is the fixed inode number of the filesystem root.
	RootDirInode = 2

	// JournalInode is the conventional (not guaranteed) inode number of
	// the journal file; the authoritative source is the superblock's
	// s_journal_inum field.
	JournalInode = 8

	// FirstNonReservedInode is the lowest inode number that isn't
	// reserved for filesystem metadata use, for filesystems that don't
	// override it via s_first_ino.
	FirstNonReservedInode = 11

	// MaxFileNameLen is the maximum byte length of a single path
	// component (directory entry name).
	MaxFileNameLen = 255

	// MaxSymlinkHops bounds path-resolution symlink chains.
	MaxSymlinkHops = 40

	// MaxExtentTreeDepth bounds extent-tree descent, defensively, even
	// though the on-disk format doesn't allow depths anywhere near this.
	MaxExtentTreeDepth = 5
)
