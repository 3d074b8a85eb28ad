package ext4fs

import (
	"github.com/gbuilds/ext4fs/crc32c"
	"github.com/gbuilds/ext4fs/disklayout"
)

// groupDescTable holds every block-group descriptor, loaded once at
// Load time since the table is small (32 or 64 bytes per group) and
// consulted on essentially every inode/block lookup.
type groupDescTable struct {
	descs     []*disklayout.GroupDescriptor
	blockSize uint32
}

// groupDescStartBlock returns the filesystem block the descriptor table
// starts at: immediately after the superblock's own block.
func groupDescStartBlock(blockSize uint32) uint64 {
	if blockSize == 1024 {
		return 2
	}
	return 1
}

func loadGroupDescTable(c *blockCache, sb *disklayout.SuperBlock) (*groupDescTable, error) {
	blockSize := blockSizeOf(sb)
	descSize := sb.GroupDescSize()
	numGroups := numBlockGroups(sb)

	tableBytes := uint64(numGroups) * uint64(descSize)
	start := groupDescStartBlock(blockSize) * uint64(blockSize)

	buf, err := c.readBytes(start, int(tableBytes))
	if err != nil {
		return nil, err
	}

	descs := make([]*disklayout.GroupDescriptor, numGroups)
	for i := 0; i < numGroups; i++ {
		off := i * int(descSize)
		raw := buf[off : off+int(descSize)]
		gd, err := disklayout.ParseGroupDescriptor(raw, descSize)
		if err != nil {
			return nil, corruptErr(err.Error())
		}
		if err := verifyGroupDescChecksum(sb, gd, raw, uint32(i)); err != nil {
			return nil, err
		}
		descs[i] = gd
	}

	return &groupDescTable{descs: descs, blockSize: blockSize}, nil
}

// groupDescChecksumOffset is the byte offset of the bg_checksum field
// within a group descriptor record, the same for both the 32-byte and
// 64-byte layouts since the hi-half extension is appended after it.
const groupDescChecksumOffset = 0x1e

// verifyGroupDescChecksum validates a group descriptor's CRC32C when
// metadata_csum is enabled. The checksum covers a seed (the
// filesystem's checksum seed, chained with the group index) followed
// by the on-disk descriptor bytes with the checksum field itself
// treated as zero, truncated to its low 16 bits.
func verifyGroupDescChecksum(sb *disklayout.SuperBlock, gd *disklayout.GroupDescriptor, raw []byte, index uint32) error {
	if !sb.FeatureROCompat().Has(disklayout.RoCompatMetadataCsum) {
		return nil
	}
	seed, ok := sb.ChecksumSeed()
	if !ok {
		uuid := sb.UUID()
		seed = crc32c.Checksum(uuid[:])
	}

	d := crc32c.NewSeeded(seed)
	d.WriteUint32LE(index)
	_, _ = d.Write(raw[:groupDescChecksumOffset])
	d.WriteUint16LE(0)
	_, _ = d.Write(raw[groupDescChecksumOffset+2:])

	if got, want := uint16(d.Sum32()), gd.Checksum(); got != want {
		return corruptErr("block group descriptor checksum mismatch")
	}
	return nil
}

// numBlockGroups returns the total number of block groups: the blocks
// past s_first_data_block divided by blocks per group, rounded up. The
// inode count is not consulted.
func numBlockGroups(sb *disklayout.SuperBlock) int {
	blocksPerGroup := uint64(sb.BlocksPerGroup())
	if blocksPerGroup == 0 {
		return 0
	}
	totalBlocks := sb.BlocksCount() - uint64(sb.FirstDataBlock())
	n := (totalBlocks + blocksPerGroup - 1) / blocksPerGroup
	return int(n)
}

func (t *groupDescTable) group(index int) (*disklayout.GroupDescriptor, error) {
	if index < 0 || index >= len(t.descs) {
		return nil, corruptErr("block group index out of range")
	}
	return t.descs[index], nil
}
