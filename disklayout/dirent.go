package disklayout

import (
	"encoding/binary"
	"fmt"
)

// Dirent is one decoded directory entry.
type Dirent struct {
	Inode      uint32
	RecordSize uint16
	FileName   string

	// FileType is only meaningful (non-zero-reliable) when the FILETYPE
	// incompat feature is set; callers that need the type on filesystems
	// without that feature must fall back to reading the target inode's
	// mode.
	FileType     FileType
	hasFileType  bool
}

// HasFileType reports whether FileType was actually encoded in this
// entry (true when FILETYPE is set on the owning filesystem).
func (d *Dirent) HasFileType() bool { return d.hasFileType }

// dirTypeToFileType maps the on-disk directory-entry file-type byte
// (distinct numbering from the inode mode nibble) to FileType.
var dirTypeToFileType = map[uint8]FileType{
	1: FileTypeRegular,
	2: FileTypeDirectory,
	3: FileTypeCharDev,
	4: FileTypeBlockDev,
	5: FileTypeFIFO,
	6: FileTypeSocket,
	7: FileTypeSymlink,
}

// ParseDirent decodes one directory entry from the start of b.
//
// withFileType selects the wire format: true reads a 1-byte name_len and
// 1-byte file_type (FILETYPE incompat feature set); false reads a 2-byte
// name_len and no file_type byte (pre-FILETYPE layout).
//
// Returns the decoded entry (nil if this is a zero-inode "empty slot"
// used purely as filler) and the record's rec_len for cursor advancement.
func ParseDirent(b []byte, withFileType bool) (*Dirent, uint16, error) {
	const fixedHeaderSize = 8 // inode(4) + rec_len(2) + name_len(1) + type/name_len_hi(1)
	if len(b) < fixedHeaderSize {
		return nil, 0, fmt.Errorf("disklayout: dirent buffer too short: %d", len(b))
	}

	inode := binary.LittleEndian.Uint32(b[0:4])
	recLen := binary.LittleEndian.Uint16(b[4:6])
	nameLenLo := b[6]
	typeOrLenHi := b[7]

	var nameLen int
	var ft FileType
	hasFT := false
	if withFileType {
		nameLen = int(nameLenLo)
		if raw, ok := dirTypeToFileType[typeOrLenHi]; ok {
			ft = raw
		}
		hasFT = true
	} else {
		nameLen = int(nameLenLo) | int(typeOrLenHi)<<8
	}

	if recLen < fixedHeaderSize {
		return nil, recLen, fmt.Errorf("disklayout: dirent rec_len too small: %d", recLen)
	}
	if fixedHeaderSize+nameLen > len(b) || fixedHeaderSize+nameLen > int(recLen) {
		return nil, recLen, fmt.Errorf("disklayout: dirent name overruns record")
	}

	if inode == 0 || nameLen == 0 {
		// Deleted/unused slot: still must be skipped by rec_len.
		return nil, recLen, nil
	}

	name := string(b[fixedHeaderSize : fixedHeaderSize+nameLen])

	return &Dirent{
		Inode:       inode,
		RecordSize:  recLen,
		FileName:    name,
		FileType:    ft,
		hasFileType: hasFT,
	}, recLen, nil
}

// MinDirentSize is the minimum on-disk size of a directory entry (header
// only, no name).
const MinDirentSize = 8
