package ext4fs

import (
	"encoding/binary"
)

// Classic (non-extent) block addressing: the 15 32-bit pointers in
// i_block are 12 direct blocks, then single/double/triple indirect
// pointers, each indirection level multiplying reach by
// pointersPerBlock (block_size / 4).
const (
	numDirectBlocks   = 12
	singleIndirectIdx = 12
	doubleIndirectIdx = 13
	tripleIndirectIdx = 14
)

// resolveIndirectBlock finds the physical block backing logical block
// lblk via the classic direct/indirect addressing scheme. Returns
// (0, false) for a hole.
func resolveIndirectBlock(c *blockCache, in *inode, lblk uint32) (uint64, bool, error) {
	ptrsPerBlock := uint32(c.blockSize / 4)
	if ptrsPerBlock == 0 {
		return 0, false, corruptErr("block size too small for indirect addressing")
	}

	data := in.Data()
	ptr := func(i int) uint32 {
		return binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}

	if lblk < numDirectBlocks {
		b := ptr(int(lblk))
		return uint64(b), b != 0, nil
	}
	l := lblk - numDirectBlocks

	single := ptrsPerBlock
	if l < single {
		return descendIndirect(c, ptr(singleIndirectIdx), 0, l)
	}
	l -= single

	double := ptrsPerBlock * ptrsPerBlock
	if l < double {
		return descendIndirect(c, ptr(doubleIndirectIdx), 1, l)
	}
	l -= double

	triple := ptrsPerBlock * ptrsPerBlock * ptrsPerBlock
	if l < triple {
		return descendIndirect(c, ptr(tripleIndirectIdx), 2, l)
	}

	return 0, false, corruptErr("logical block exceeds maximum indirect-addressable file size")
}

// descendIndirect walks `level` additional levels of indirection below
// the block named by ptr (0 = single, 1 = double, 2 = triple), landing
// on the leaf pointer for offset `rel` within that subtree.
func descendIndirect(c *blockCache, ptrBlock uint32, level int, rel uint32) (uint64, bool, error) {
	if ptrBlock == 0 {
		return 0, false, nil
	}
	ptrsPerBlock := uint32(c.blockSize / 4)

	block, err := c.readBlock(uint64(ptrBlock))
	if err != nil {
		return 0, false, err
	}

	if level == 0 {
		if rel >= ptrsPerBlock {
			return 0, false, corruptErr("indirect block index out of range")
		}
		b := binary.LittleEndian.Uint32(block[rel*4 : rel*4+4])
		return uint64(b), b != 0, nil
	}

	span := ptrsPerBlock
	for i := 1; i < level; i++ {
		span *= ptrsPerBlock
	}
	childIdx := rel / span
	childRel := rel % span
	if childIdx >= ptrsPerBlock {
		return 0, false, corruptErr("indirect block index out of range")
	}
	childPtr := binary.LittleEndian.Uint32(block[childIdx*4 : childIdx*4+4])
	return descendIndirect(c, childPtr, level-1, childRel)
}
