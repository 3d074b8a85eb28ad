package ext4fs

import (
	"encoding/binary"

	"github.com/gbuilds/ext4fs/disklayout"
	"github.com/sirupsen/logrus"
)

// journalInfo records whether a journal was present and replayed, for
// diagnostics; the actual effect of replay is entirely captured in the
// overlay passed to the block cache.
type journalInfo struct {
	present  bool
	replayed bool
	blocks   int
}

const (
	jbd2Magic = 0xc03b3998

	jbd2Descriptor  = 1
	jbd2Commit      = 2
	jbd2SuperblockV2 = 4
	jbd2Revocation  = 5

	jbd2TagEscaped     = 0x1
	jbd2TagUUIDOmitted = 0x2
	jbd2TagDeleted     = 0x4
	jbd2TagLastTag     = 0x8

	jbd2FeatureIncompat64Bit          = 0x2
	jbd2FeatureIncompatRevocations    = 0x1
	jbd2FeatureIncompatChecksumV3     = 0x10
	jbd2ChecksumTypeCRC32C            = 4
)

// blockHeader is the 12-byte header at the start of every journal
// block.
type blockHeader struct {
	magic      uint32
	blockType  uint32
	sequence   uint32
}

func parseBlockHeader(b []byte) (blockHeader, error) {
	if len(b) < 12 {
		return blockHeader{}, corruptErr("journal block header truncated")
	}
	h := blockHeader{
		magic:     binary.BigEndian.Uint32(b[0:4]),
		blockType: binary.BigEndian.Uint32(b[4:8]),
		sequence:  binary.BigEndian.Uint32(b[8:12]),
	}
	if h.magic != jbd2Magic {
		return blockHeader{}, corruptErr("bad journal block magic")
	}
	return h, nil
}

// journalSuperblock is the decoded journal-relative block 0.
type journalSuperblock struct {
	blockSize      uint32
	maxLen         uint32
	firstBlock     uint32
	sequence       uint32
	startBlock     uint32
	featureIncompat uint32
	uuid           [16]byte
	checksumType   uint8
}

func parseJournalSuperblock(b []byte) (journalSuperblock, error) {
	if len(b) < 0x100 {
		return journalSuperblock{}, corruptErr("journal superblock truncated")
	}
	h, err := parseBlockHeader(b)
	if err != nil {
		return journalSuperblock{}, err
	}
	if h.blockType != jbd2SuperblockV2 {
		return journalSuperblock{}, incompatibleErr("journal superblock is not version 2")
	}
	sb := journalSuperblock{
		blockSize:       binary.BigEndian.Uint32(b[0xc:0x10]),
		maxLen:          binary.BigEndian.Uint32(b[0x10:0x14]),
		firstBlock:      binary.BigEndian.Uint32(b[0x14:0x18]),
		sequence:        binary.BigEndian.Uint32(b[0x18:0x1c]),
		startBlock:      binary.BigEndian.Uint32(b[0x1c:0x20]),
		featureIncompat: binary.BigEndian.Uint32(b[0x28:0x2c]),
		checksumType:    b[0x50],
	}
	copy(sb.uuid[:], b[0x30:0x40])
	return sb, nil
}

// validateJournalSuperblock checks the fields this library relies on to
// replay the journal safely: it must be the kind of log that this
// library's descriptor/commit/revocation parsing understands, and
// nothing else.
func validateJournalSuperblock(sb journalSuperblock) error {
	const required = jbd2FeatureIncompat64Bit | jbd2FeatureIncompatChecksumV3
	const allowed = required | jbd2FeatureIncompatRevocations

	if sb.featureIncompat&required != required {
		return incompatibleErr("journal missing required incompat features")
	}
	if sb.featureIncompat&^allowed != 0 {
		return incompatibleErr("journal has unsupported incompat features")
	}
	if sb.checksumType != jbd2ChecksumTypeCRC32C {
		return incompatibleErr("journal checksum type is not crc32c")
	}
	if sb.blockSize == 0 {
		return corruptErr("journal block size is zero")
	}
	return nil
}

// descriptorTag is one entry of a descriptor block: the filesystem
// block index the tagged journal block should be written to.
type descriptorTag struct {
	blockIndex uint32
	flags      uint32
	last       bool
}

func parseDescriptorTags(body []byte, has64Bit, csumV3 bool) ([]descriptorTag, error) {
	var tags []descriptorTag
	pos := 0
	for {
		// Tags are a fixed 16 bytes: block number (low 32 bits), flags,
		// a 4-byte crc32c, then block number (high 32 bits).
		const tagFixedSize = 16
		if pos+tagFixedSize > len(body) {
			break
		}
		blockLo := binary.BigEndian.Uint32(body[pos : pos+4])
		flags := binary.BigEndian.Uint32(body[pos+4 : pos+8])
		_ = binary.BigEndian.Uint32(body[pos+8 : pos+12]) // checksum, unused for replay
		blockHi := binary.BigEndian.Uint32(body[pos+12 : pos+16])
		pos += tagFixedSize

		block := uint64(blockLo)
		if has64Bit {
			block |= uint64(blockHi) << 32
		}
		_ = block

		if flags&jbd2TagUUIDOmitted == 0 {
			pos += 16 // skip the per-tag UUID
		}

		tags = append(tags, descriptorTag{
			blockIndex: blockLo,
			flags:      flags,
			last:       flags&jbd2TagLastTag != 0,
		})
		if flags&jbd2TagLastTag != 0 {
			break
		}
	}
	return tags, nil
}

// readRevocationTable decodes the big-endian block-index table from a
// revocation block body: everything after the 12-byte block header, that
// is a 4-byte table size in bytes followed by the table of 8-byte block
// numbers.
func readRevocationTable(body []byte) (map[uint64]bool, error) {
	if len(body) < 4 {
		return nil, corruptErr("revocation block too short")
	}
	size := binary.BigEndian.Uint32(body[0:4])
	if size%8 != 0 {
		return nil, corruptErr("revocation table size not a multiple of 8")
	}
	if 4+int(size) > len(body) {
		return nil, corruptErr("revocation table size overruns block")
	}
	table := make(map[uint64]bool)
	for off := 4; off < int(size); off += 8 {
		block := binary.BigEndian.Uint64(body[off : off+8])
		table[block] = true
	}
	return table, nil
}

// replayJournal scans the JBD2 log referenced by the superblock (if
// any) and returns an overlay of replacement block contents for every
// block a committed transaction wrote, honoring revocation records so
// a block revoked after its last real write is never resurrected by an
// earlier, now-stale log entry.
func replayJournal(r Reader, sb *disklayout.SuperBlock, log *logrus.Logger) (*overlay, *journalInfo, error) {
	info := &journalInfo{}
	ov := newOverlay()

	journalIno, ok := sb.JournalInode()
	if !ok {
		return ov, info, nil
	}
	info.present = true

	if !sb.FeatureIncompat().Has(disklayout.IncompatRecover) {
		// Filesystem was cleanly unmounted: nothing to replay, even
		// though a journal inode exists.
		log.Debug("ext4fs: journal present but recover flag unset, skipping replay")
		return ov, info, nil
	}

	// Bootstrap a minimal cache/group-desc/inode chain to read the
	// journal inode's own content, without depending on the overlay
	// this function is building.
	blockSize := blockSizeOf(sb)
	cache := newBlockCache(r, blockSize, DefaultCacheBlocks, newOverlay())
	gdt, err := loadGroupDescTable(cache, sb)
	if err != nil {
		return nil, nil, err
	}
	jInode, err := readInode(cache, sb, gdt, journalIno)
	if err != nil {
		return nil, nil, err
	}

	bootstrap := &fs{cache: cache, sb: sb, gdt: gdt}

	jSize := jInode.Size()
	sbBytes, err := bootstrap.readFileRange(jInode, 0, uint64(blockSize))
	if err != nil {
		return nil, nil, err
	}
	jsb, err := parseJournalSuperblock(sbBytes)
	if err != nil {
		return nil, nil, err
	}
	if err := validateJournalSuperblock(jsb); err != nil {
		return nil, nil, err
	}
	if jsb.startBlock == 0 {
		// An empty journal (s_start == 0) has nothing to replay.
		return ov, info, nil
	}

	has64Bit := jsb.featureIncompat&jbd2FeatureIncompat64Bit != 0
	csumV3 := jsb.featureIncompat&jbd2FeatureIncompatChecksumV3 != 0

	maxJournalBlocks := jSize / uint64(jsb.blockSize)
	if maxJournalBlocks == 0 {
		return ov, info, nil
	}

	revoked := make(map[uint64]bool)
	pending := make(map[uint64][]byte) // fs block -> replayed content, in commit order

	cur := uint64(jsb.startBlock)
	curSeq := jsb.sequence

	readJournalBlock := func(idx uint64) ([]byte, error) {
		idx = idx % maxJournalBlocks
		return bootstrap.readFileRange(jInode, idx*uint64(jsb.blockSize), uint64(jsb.blockSize))
	}

	for steps := uint64(0); steps < maxJournalBlocks; steps++ {
		blk, err := readJournalBlock(cur)
		if err != nil {
			return nil, nil, err
		}
		hdr, err := parseBlockHeader(blk)
		if err != nil {
			// Not a valid journal block: the log has ended here.
			break
		}
		if hdr.sequence != curSeq {
			break
		}

		switch hdr.blockType {
		case jbd2Descriptor:
			tags, err := parseDescriptorTags(blk[12:], has64Bit, csumV3)
			if err != nil {
				return nil, nil, err
			}
			for _, tag := range tags {
				cur++
				dataBlk, err := readJournalBlock(cur)
				if err != nil {
					return nil, nil, err
				}
				content := make([]byte, len(dataBlk))
				copy(content, dataBlk)
				if tag.flags&jbd2TagEscaped != 0 {
					binary.BigEndian.PutUint32(content[0:4], jbd2Magic)
				}
				pending[uint64(tag.blockIndex)] = content
				if tag.last {
					break
				}
			}
			cur++
			info.blocks++

		case jbd2Commit:
			for fsBlock, content := range pending {
				if !revoked[fsBlock] {
					ov.set(fsBlock, content)
				}
			}
			pending = make(map[uint64][]byte)
			cur++
			curSeq++

		case jbd2Revocation:
			table, err := readRevocationTable(blk[12:])
			if err != nil {
				return nil, nil, err
			}
			for b := range table {
				revoked[b] = true
				delete(pending, b)
			}
			cur++

		default:
			cur++
		}
	}

	info.replayed = true
	return ov, info, nil
}
