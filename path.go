package ext4fs

import (
	"strings"

	"github.com/gbuilds/ext4fs/disklayout"
)

// resolved is everything path resolution produces about a target: its
// inode number and the decoded inode.
type resolved struct {
	ino  uint32
	node *inode
}

// resolvePath walks path from the root inode, splicing in symlink
// targets as an explicit work-list rather than recursion so a
// pathological chain of symlinks can never grow the call stack.
func (f *fs) resolvePath(path string) (*resolved, error) {
	components, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	curIno := uint32(disklayout.RootDirInode)
	curNode, err := readInode(f.cache, f.sb, f.gdt, curIno)
	if err != nil {
		return nil, err
	}

	hops := 0
	work := components

	for len(work) > 0 {
		name := work[0]
		rest := work[1:]

		if !curNode.IsDir() {
			return nil, newErr(KindNotADirectory, "")
		}

		entry, ok, err := f.lookupInDirectory(curNode, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newErr(KindNotFound, "")
		}

		nextNode, err := readInode(f.cache, f.sb, f.gdt, entry.Inode)
		if err != nil {
			return nil, err
		}

		if nextNode.IsSymlink() {
			hops++
			if hops > disklayout.MaxSymlinkHops {
				return nil, newErr(KindSymlinkLoop, "")
			}
			target, err := f.readSymlinkTarget(nextNode)
			if err != nil {
				return nil, err
			}
			targetComponents, err := splitPath(target)
			if err != nil {
				return nil, err
			}
			if strings.HasPrefix(target, "/") {
				curIno = disklayout.RootDirInode
				curNode, err = readInode(f.cache, f.sb, f.gdt, curIno)
				if err != nil {
					return nil, err
				}
				work = append(append([]string{}, targetComponents...), rest...)
				continue
			}
			work = append(append([]string{}, targetComponents...), rest...)
			continue
		}

		curIno = entry.Inode
		curNode = nextNode
		work = rest
	}

	return &resolved{ino: curIno, node: curNode}, nil
}

// readSymlinkTarget returns a symlink inode's target path, reading it
// either from the inline fast-symlink bytes in i_block or, for longer
// targets, the first data block.
func (f *fs) readSymlinkTarget(in *inode) (string, error) {
	size := in.Size()
	if size == 0 || size > uint64(disklayout.MaxFileNameLen)*4 {
		return "", corruptErr("implausible symlink target length")
	}

	// A "fast" symlink stores its target directly in i_block as long as
	// the inode uses no data blocks at all (i_blocks == 0) and isn't
	// using extents; once extents or inline-data flags are present the
	// target must be read as ordinary file content instead, since the
	// 60-byte union is occupied by tree/inline-data metadata.
	if in.BlocksCount() == 0 && !in.Flags().Has(disklayout.InodeFlagExtents) && !in.Flags().Has(disklayout.InodeFlagInline) {
		data := in.Data()
		if size > uint64(len(data)) {
			return "", corruptErr("fast symlink target longer than i_block")
		}
		return string(data[:size]), nil
	}

	content, err := f.readFileRange(in, 0, size)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// splitPath normalizes and splits a slash-separated path into its
// non-empty, non-"."  components. Both forward and backward slashes
// are accepted as separators, since the primary motivation for an
// embedded ext4 reader is content authored on a variety of hosts.
func splitPath(path string) ([]string, error) {
	if len(path) == 0 {
		return nil, newErr(KindMalformedPath, "")
	}
	if len(path) > 4096 {
		return nil, newErr(KindPathTooLong, "")
	}

	normalized := strings.Map(func(r rune) rune {
		if r == '\\' {
			return '/'
		}
		return r
	}, path)

	raw := strings.Split(normalized, "/")
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		if c == "" || c == "." {
			continue
		}
		if c == ".." {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		if len(c) > disklayout.MaxFileNameLen {
			return nil, newErr(KindPathTooLong, "")
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
