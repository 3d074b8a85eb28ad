package ext4fs

import (
	"encoding/binary"
	"testing"
)

func encodeJournalBlockHeader(blockType, sequence uint32) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:4], jbd2Magic)
	binary.BigEndian.PutUint32(b[4:8], blockType)
	binary.BigEndian.PutUint32(b[8:12], sequence)
	return b
}

func TestParseBlockHeader(t *testing.T) {
	b := encodeJournalBlockHeader(jbd2Commit, 42)
	h, err := parseBlockHeader(b)
	if err != nil {
		t.Fatalf("parseBlockHeader: %v", err)
	}
	if h.blockType != jbd2Commit || h.sequence != 42 {
		t.Errorf("got %+v", h)
	}
}

func TestParseBlockHeaderRejectsBadMagic(t *testing.T) {
	b := encodeJournalBlockHeader(jbd2Commit, 1)
	b[0] = 0
	if _, err := parseBlockHeader(b); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestParseBlockHeaderRejectsTruncated(t *testing.T) {
	if _, err := parseBlockHeader(make([]byte, 4)); err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func encodeJournalSuperblock(t *testing.T, blockSize, maxLen, firstBlock, sequence, startBlock, featureIncompat uint32, checksumType uint8) []byte {
	t.Helper()
	b := make([]byte, 0x400)
	copy(b, encodeJournalBlockHeader(jbd2SuperblockV2, sequence))
	binary.BigEndian.PutUint32(b[0xc:0x10], blockSize)
	binary.BigEndian.PutUint32(b[0x10:0x14], maxLen)
	binary.BigEndian.PutUint32(b[0x14:0x18], firstBlock)
	binary.BigEndian.PutUint32(b[0x18:0x1c], sequence)
	binary.BigEndian.PutUint32(b[0x1c:0x20], startBlock)
	binary.BigEndian.PutUint32(b[0x28:0x2c], featureIncompat)
	b[0x50] = checksumType
	return b
}

func TestParseJournalSuperblock(t *testing.T) {
	b := encodeJournalSuperblock(t, 4096, 1024, 1, 7, 3, jbd2FeatureIncompat64Bit, jbd2ChecksumTypeCRC32C)
	sb, err := parseJournalSuperblock(b)
	if err != nil {
		t.Fatalf("parseJournalSuperblock: %v", err)
	}
	if sb.blockSize != 4096 || sb.sequence != 7 || sb.startBlock != 3 {
		t.Errorf("got %+v", sb)
	}
}

func TestValidateJournalSuperblockRequiresFeatures(t *testing.T) {
	sb := journalSuperblock{
		blockSize:       4096,
		featureIncompat: 0,
		checksumType:    jbd2ChecksumTypeCRC32C,
	}
	if err := validateJournalSuperblock(sb); err == nil {
		t.Fatal("expected error when required incompat features are missing")
	}

	sb.featureIncompat = jbd2FeatureIncompat64Bit | jbd2FeatureIncompatChecksumV3
	if err := validateJournalSuperblock(sb); err != nil {
		t.Fatalf("expected no error with required features set: %v", err)
	}

	sb.featureIncompat |= jbd2FeatureIncompatRevocations
	if err := validateJournalSuperblock(sb); err != nil {
		t.Fatalf("revocations should be an allowed extra feature: %v", err)
	}
}

func TestValidateJournalSuperblockRejectsUnknownFeature(t *testing.T) {
	sb := journalSuperblock{
		blockSize:       4096,
		featureIncompat: jbd2FeatureIncompat64Bit | jbd2FeatureIncompatChecksumV3 | 0x40,
		checksumType:    jbd2ChecksumTypeCRC32C,
	}
	if err := validateJournalSuperblock(sb); err == nil {
		t.Fatal("expected error for an unrecognized incompat feature bit")
	}
}

func TestValidateJournalSuperblockRejectsWrongChecksumType(t *testing.T) {
	sb := journalSuperblock{
		blockSize:       4096,
		featureIncompat: jbd2FeatureIncompat64Bit | jbd2FeatureIncompatChecksumV3,
		checksumType:    1,
	}
	if err := validateJournalSuperblock(sb); err == nil {
		t.Fatal("expected error for non-crc32c checksum type")
	}
}

func TestValidateJournalSuperblockRejectsZeroBlockSize(t *testing.T) {
	sb := journalSuperblock{
		featureIncompat: jbd2FeatureIncompat64Bit | jbd2FeatureIncompatChecksumV3,
		checksumType:    jbd2ChecksumTypeCRC32C,
	}
	if err := validateJournalSuperblock(sb); err == nil {
		t.Fatal("expected error for zero block size")
	}
}

// encodeDescriptorTag writes one checksum-v3-style descriptor tag (16
// fixed bytes, plus a 16-byte per-tag UUID unless omitted).
func encodeDescriptorTag(blockLo, flags, blockHi uint32, uuid []byte) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint32(b[0:4], blockLo)
	binary.BigEndian.PutUint32(b[4:8], flags)
	binary.BigEndian.PutUint32(b[12:16], blockHi)
	if flags&jbd2TagUUIDOmitted == 0 {
		b = append(b, uuid...)
	}
	return b
}

func TestParseDescriptorTagsSingleTag(t *testing.T) {
	body := encodeDescriptorTag(100, jbd2TagUUIDOmitted|jbd2TagLastTag, 0, nil)
	tags, err := parseDescriptorTags(body, false, true)
	if err != nil {
		t.Fatalf("parseDescriptorTags: %v", err)
	}
	if len(tags) != 1 || tags[0].blockIndex != 100 || !tags[0].last {
		t.Fatalf("got %+v", tags)
	}
}

func TestParseDescriptorTagsMultipleWithUUID(t *testing.T) {
	uuid := make([]byte, 16)
	var body []byte
	body = append(body, encodeDescriptorTag(1, 0, 0, uuid)...)
	body = append(body, encodeDescriptorTag(2, jbd2TagUUIDOmitted|jbd2TagLastTag, 0, nil)...)

	tags, err := parseDescriptorTags(body, false, true)
	if err != nil {
		t.Fatalf("parseDescriptorTags: %v", err)
	}
	if len(tags) != 2 || tags[0].blockIndex != 1 || tags[1].blockIndex != 2 || !tags[1].last {
		t.Fatalf("got %+v", tags)
	}
}

func TestParseDescriptorTagsStopsOnTruncatedTrailer(t *testing.T) {
	body := make([]byte, 8) // shorter than one fixed tag
	tags, err := parseDescriptorTags(body, false, true)
	if err != nil {
		t.Fatalf("parseDescriptorTags: %v", err)
	}
	if len(tags) != 0 {
		t.Fatalf("expected no tags from a truncated body, got %+v", tags)
	}
}

func TestReadRevocationTable(t *testing.T) {
	body := make([]byte, 4+16)
	binary.BigEndian.PutUint32(body[0:4], 16)
	binary.BigEndian.PutUint64(body[4:12], 7)
	binary.BigEndian.PutUint64(body[12:20], 9)

	table, err := readRevocationTable(body)
	if err != nil {
		t.Fatalf("readRevocationTable: %v", err)
	}
	if !table[7] || !table[9] || len(table) != 2 {
		t.Fatalf("got %+v", table)
	}
}

func TestReadRevocationTableRejectsMisalignedSize(t *testing.T) {
	body := make([]byte, 8)
	binary.BigEndian.PutUint32(body[0:4], 5)
	if _, err := readRevocationTable(body); err == nil {
		t.Fatal("expected error for a size not a multiple of 8")
	}
}

func TestReadRevocationTableRejectsOverrunningSize(t *testing.T) {
	body := make([]byte, 8)
	binary.BigEndian.PutUint32(body[0:4], 64)
	if _, err := readRevocationTable(body); err == nil {
		t.Fatal("expected error when the table size overruns the block")
	}
}
