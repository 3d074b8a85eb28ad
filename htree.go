package ext4fs

import (
	"encoding/binary"

	"github.com/gbuilds/ext4fs/disklayout"
)

// internalNode is one dx_root or dx_node block's index: a header
// (limit, count, zero_block) followed by count-1 (hash, block) pairs,
// sorted ascending by hash. Entry 0's hash is implicitly zero.
type internalNode struct {
	entries []byte // exactly count*8 bytes
}

const dxEntrySize = 8

func newInternalNode(raw []byte, count uint16) (internalNode, error) {
	end := int(count) * dxEntrySize
	if end > len(raw) {
		return internalNode{}, corruptErr("htree node count overruns block")
	}
	return internalNode{entries: raw[:end]}, nil
}

func (n internalNode) numEntries() int { return len(n.entries) / dxEntrySize }

func (n internalNode) entry(i int) (hash, block uint32) {
	off := i * dxEntrySize
	block = binary.LittleEndian.Uint32(n.entries[off+4 : off+8])
	if i == 0 {
		return 0, block
	}
	return binary.LittleEndian.Uint32(n.entries[off : off+4]), block
}

// lookupBlockByHash finds the child block whose hash range covers
// lookupHash, via the same binary search the kernel and every HTree
// implementation uses.
func (n internalNode) lookupBlockByHash(lookupHash uint32) (uint32, bool) {
	num := n.numEntries()
	if num == 0 {
		return 0, false
	}
	left, right := 0, num-1
	for left <= right {
		mid := (left + right) / 2
		midHash, _ := n.entry(mid)
		if midHash <= lookupHash {
			left = mid + 1
		} else {
			right = mid - 1
		}
	}
	if left == 0 {
		return 0, false
	}
	_, block := n.entry(left - 1)
	return block, true
}

// dxRootInfoOffset is where dot/dotdot fake dirents end and the
// dx_root_info header begins within block 0 of an indexed directory.
const dxRootInfoOffset = 0x18

// dxRootEntriesOffset is where the InternalNode entries begin in the
// root block: past the 24-byte dot/dotdot fake dirents and the 8-byte
// dx_root_info header.
const dxRootEntriesOffset = 0x20

// dxNodeEntriesOffset is where entries begin in a non-root dx_node
// block: past its single 8-byte fake dirent (no name).
const dxNodeEntriesOffset = 0x8

// lookupHTree resolves name within an HTree-indexed directory by
// hashing it and descending the index, falling back to a linear scan
// of the resolved leaf block.
func (f *fs) lookupHTree(in *inode, name string) (DirEntry, bool, error) {
	root, ok, err := f.readLogicalBlock(in, 0)
	if err != nil {
		return DirEntry{}, false, err
	}
	if !ok || len(root) < dxRootEntriesOffset+dxEntrySize {
		return DirEntry{}, false, corruptErr("htree root block missing or too small")
	}

	if name == "." || name == ".." {
		return f.lookupDotEntry(root, name)
	}

	hashVer := hashVersion(root[dxRootInfoOffset+4])
	hash, err := dirHash([]byte(name), hashVer, f.sb.HashSeed())
	if err != nil {
		return DirEntry{}, false, err
	}

	countRaw := binary.LittleEndian.Uint16(root[dxRootEntriesOffset+2 : dxRootEntriesOffset+4])
	rootNode, err := newInternalNode(root[dxRootEntriesOffset:], countRaw)
	if err != nil {
		return DirEntry{}, false, err
	}

	depth := root[dxRootInfoOffset+6]

	childRel, ok := rootNode.lookupBlockByHash(hash)
	if !ok {
		return DirEntry{}, false, corruptErr("htree root has no matching entry")
	}

	var leaf []byte
	for level := 0; level <= int(depth); level++ {
		data, ok, err := f.readLogicalBlock(in, childRel)
		if err != nil {
			return DirEntry{}, false, err
		}
		if !ok {
			return DirEntry{}, false, corruptErr("htree child block is a hole")
		}
		leaf = data
		if level != int(depth) {
			if len(data) < dxNodeEntriesOffset+dxEntrySize {
				return DirEntry{}, false, corruptErr("htree node block too small")
			}
			count := binary.LittleEndian.Uint16(data[dxNodeEntriesOffset+2 : dxNodeEntriesOffset+4])
			node, err := newInternalNode(data[dxNodeEntriesOffset:], count)
			if err != nil {
				return DirEntry{}, false, err
			}
			childRel, ok = node.lookupBlockByHash(hash)
			if !ok {
				return DirEntry{}, false, corruptErr("htree node has no matching entry")
			}
		}
	}

	withFileType := f.sb.FeatureIncompat().Has(disklayout.IncompatFileType)
	entries, err := scanDirentBlock(leaf, withFileType)
	if err != nil {
		return DirEntry{}, false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, true, nil
		}
	}
	return DirEntry{}, false, nil
}

func (f *fs) lookupDotEntry(root []byte, name string) (DirEntry, bool, error) {
	withFileType := f.sb.FeatureIncompat().Has(disklayout.IncompatFileType)
	off := 0
	if name == ".." {
		off = 12
	}
	d, _, err := disklayout.ParseDirent(root[off:], withFileType)
	if err != nil {
		return DirEntry{}, false, corruptErr(err.Error())
	}
	if d == nil || d.FileName != name {
		return DirEntry{}, false, corruptErr("missing dot entry in htree root")
	}
	return DirEntry{Name: d.FileName, Inode: d.Inode, FileType: d.FileType}, true, nil
}
