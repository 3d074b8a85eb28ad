package ext4fs

import (
	"github.com/gbuilds/ext4fs/disklayout"
)

// resolveExtent finds the extent covering logical block lblk by
// descending the inode's extent tree, starting from the inline root
// stored in i_block. It returns (extent, true) if lblk falls within an
// allocated (possibly uninitialized) extent, or (zero, false) if lblk
// falls in a hole.
func resolveExtent(c *blockCache, in *inode, lblk uint32) (disklayout.Extent, bool, error) {
	root := in.Data()
	return walkExtentNode(c, root, lblk, 0)
}

func walkExtentNode(c *blockCache, node []byte, lblk uint32, depth int) (disklayout.Extent, bool, error) {
	if depth > disklayout.MaxExtentTreeDepth {
		return disklayout.Extent{}, false, corruptErr("extent tree deeper than maximum depth")
	}

	hdr, err := disklayout.ParseExtentHeader(node)
	if err != nil {
		return disklayout.Extent{}, false, corruptErr(err.Error())
	}

	body := node[disklayout.ExtentHeaderSize:]
	need := int(hdr.NumEntries) * disklayout.ExtentEntrySize
	if need > len(body) {
		return disklayout.Extent{}, false, corruptErr("extent node entries overrun buffer")
	}

	if hdr.Depth == 0 {
		return searchLeafExtents(body, hdr.NumEntries, lblk)
	}
	return descendExtentIndex(c, body, hdr.NumEntries, lblk, depth)
}

// searchLeafExtents binary-searches the leaf entries for the one whose
// range [FirstFileBlock, FirstFileBlock+Length) contains lblk.
func searchLeafExtents(body []byte, numEntries uint16, lblk uint32) (disklayout.Extent, bool, error) {
	lo, hi := 0, int(numEntries)-1
	var candidate *disklayout.Extent
	for lo <= hi {
		mid := (lo + hi) / 2
		off := mid * disklayout.ExtentEntrySize
		ext, err := disklayout.ParseExtent(body[off : off+disklayout.ExtentEntrySize])
		if err != nil {
			return disklayout.Extent{}, false, corruptErr(err.Error())
		}
		if ext.FirstFileBlock <= lblk {
			e := ext
			candidate = &e
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if candidate == nil {
		return disklayout.Extent{}, false, nil
	}
	if lblk >= candidate.FirstFileBlock+uint32(candidate.Length) {
		return disklayout.Extent{}, false, nil
	}
	return *candidate, true, nil
}

// descendExtentIndex binary-searches the index entries for the child
// covering lblk and recurses into it.
func descendExtentIndex(c *blockCache, body []byte, numEntries uint16, lblk uint32, depth int) (disklayout.Extent, bool, error) {
	lo, hi := 0, int(numEntries)-1
	var candidate *disklayout.ExtentIdx
	for lo <= hi {
		mid := (lo + hi) / 2
		off := mid * disklayout.ExtentEntrySize
		idx, err := disklayout.ParseExtentIdx(body[off : off+disklayout.ExtentEntrySize])
		if err != nil {
			return disklayout.Extent{}, false, corruptErr(err.Error())
		}
		if idx.FirstFileBlock <= lblk {
			i := idx
			candidate = &i
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if candidate == nil {
		return disklayout.Extent{}, false, nil
	}
	child, err := c.readBlock(candidate.ChildBlock())
	if err != nil {
		return disklayout.Extent{}, false, err
	}
	return walkExtentNode(c, child, lblk, depth+1)
}
