package ext4fs

import (
	"github.com/gbuilds/ext4fs/disklayout"
)

// DirEntry is one entry returned by ReadDir: a name paired with the
// inode number and (when cheaply known) file type it names.
type DirEntry struct {
	Name     string
	Inode    uint32
	FileType disklayout.FileType
}

// listDirectory returns every entry in the directory inode in, in
// on-disk order, by linearly scanning its blocks. HTree-indexed
// directories are still laid out with a complete, scannable linear
// entry stream (the index only accelerates lookup of a single name),
// so this also serves as the fallback for lookupInDirectory when no
// usable hash index is present.
func (f *fs) listDirectory(in *inode) ([]DirEntry, error) {
	if !in.IsDir() {
		return nil, newErr(KindNotADirectory, "")
	}

	withFileType := f.sb.FeatureIncompat().Has(disklayout.IncompatFileType)
	blockSize := uint64(blockSizeOf(f.sb))
	size := in.Size()
	numBlocks := (size + blockSize - 1) / blockSize

	var entries []DirEntry
	for lblk := uint32(0); uint64(lblk) < numBlocks; lblk++ {
		data, ok, err := f.readLogicalBlock(in, lblk)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // sparse directory block: no entries to yield
		}
		if isHTreeRootOrNodeBlock(data, lblk) {
			// dx_root/dx_node blocks masquerade as a single dirent
			// spanning the whole block; the real linear entries for a
			// directory using HTree still live in the leaf blocks that
			// follow, which this scan also visits.
			continue
		}
		blockEntries, err := scanDirentBlock(data, withFileType)
		if err != nil {
			return nil, err
		}
		entries = append(entries, blockEntries...)
	}
	return entries, nil
}

func scanDirentBlock(data []byte, withFileType bool) ([]DirEntry, error) {
	var out []DirEntry
	pos := 0
	for pos+disklayout.MinDirentSize <= len(data) {
		d, recLen, err := disklayout.ParseDirent(data[pos:], withFileType)
		if err != nil {
			return nil, corruptErr(err.Error())
		}
		if recLen == 0 {
			return nil, corruptErr("dirent with zero rec_len")
		}
		if int(recLen) > len(data)-pos {
			return nil, corruptErr("dirent rec_len overruns block")
		}
		if recLen%4 != 0 {
			return nil, corruptErr("dirent rec_len is not 4-byte aligned")
		}
		if d != nil {
			out = append(out, DirEntry{Name: d.FileName, Inode: d.Inode, FileType: d.FileType})
		}
		pos += int(recLen)
	}
	if pos != len(data) {
		return nil, corruptErr("directory block entries do not sum to the block size")
	}
	return out, nil
}

// isHTreeRootOrNodeBlock reports whether a directory block is a dx_root
// or dx_node index block rather than a block of real entries: block 0
// of an indexed directory begins with "." and ".." dirents sized so
// their combined rec_len reaches a dx_root header, which this scan
// recognizes by the fake "." dirent's rec_len covering the entire
// block (a property no ordinary leaf block has, since ordinary leaf
// blocks fill with many small entries).
//
// Non-root dx_node blocks (lblk > 0 under an INDEX-flagged directory)
// have no "." entry at all; htree.go's own traversal never routes
// through this function for those, so it is only ever asked about
// block 0.
func isHTreeRootOrNodeBlock(data []byte, lblk uint32) bool {
	if lblk != 0 || len(data) < 12 {
		return false
	}
	dotRecLen := leUint16(data[4:6])
	return int(dotRecLen) >= len(data)-12 && int(dotRecLen) < len(data)
}

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

// lookupInDirectory resolves a single name to a DirEntry within
// the directory inode in. It tries the HTree index first when the
// directory advertises one and this library supports its hash
// algorithm, falling back to a full linear scan otherwise (including
// when the index itself turns out to be corrupt, since the directory's
// underlying entries are still valid even if the index isn't).
func (f *fs) lookupInDirectory(in *inode, name string) (DirEntry, bool, error) {
	if in.Flags().Has(disklayout.InodeFlagIndex) {
		entry, ok, err := f.lookupHTree(in, name)
		if err == nil {
			return entry, ok, nil
		}
	}

	entries, err := f.listDirectory(in)
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
