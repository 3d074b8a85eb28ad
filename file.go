package ext4fs

import (
	"github.com/gbuilds/ext4fs/disklayout"
)

// fs ties together everything needed to resolve an inode's content:
// the cache, superblock and group descriptor table loaded once at
// Load time.
type fs struct {
	cache *blockCache
	sb    *disklayout.SuperBlock
	gdt   *groupDescTable
	jrnl  *journalInfo
}

// readFileRange reads length bytes of file content starting at byte
// offset off within in, zero-filling any hole and stopping early (short
// read, not an error) at end of file.
func (f *fs) readFileRange(in *inode, off, length uint64) ([]byte, error) {
	size := in.Size()
	if off >= size {
		return nil, nil
	}
	if off+length > size {
		length = size - off
	}

	if in.Flags().Has(disklayout.InodeFlagInline) {
		full, err := readInlineData(f.cache, f.sb, in, size)
		if err != nil {
			return nil, err
		}
		return full[off : off+length], nil
	}

	blockSize := uint64(blockSizeOf(f.sb))
	out := make([]byte, 0, length)
	for uint64(len(out)) < length {
		cur := off + uint64(len(out))
		lblk := uint32(cur / blockSize)
		withinBlock := cur % blockSize
		want := length - uint64(len(out))
		if want > blockSize-withinBlock {
			want = blockSize - withinBlock
		}

		data, ok, err := f.readLogicalBlock(in, lblk)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, make([]byte, want)...)
			continue
		}
		out = append(out, data[withinBlock:withinBlock+want]...)
	}
	return out, nil
}

// readLogicalBlock returns the full content of logical block lblk of
// in, dispatching on whether the inode uses extents or classic
// indirect addressing. ok is false for a hole (sparse file region).
func (f *fs) readLogicalBlock(in *inode, lblk uint32) ([]byte, bool, error) {
	if in.Flags().Has(disklayout.InodeFlagExtents) {
		ext, ok, err := resolveExtent(f.cache, in, lblk)
		if err != nil || !ok {
			return nil, ok, err
		}
		if ext.Uninitialized {
			return nil, false, nil
		}
		blockOffsetInExtent := uint64(lblk - ext.FirstFileBlock)
		phys := ext.PhysicalBlock() + blockOffsetInExtent
		data, err := f.cache.readBlock(phys)
		return data, true, err
	}

	phys, ok, err := resolveIndirectBlock(f.cache, in, lblk)
	if err != nil || !ok {
		return nil, ok, err
	}
	data, err := f.cache.readBlock(phys)
	return data, true, err
}
