package disklayout

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// rawSuperBlock is the exact 1024-byte on-disk superblock layout, valid
// across ext2, ext3 and ext4: later revisions only ever consumed bytes
// that earlier revisions left as reserved padding, so one struct can
// describe every revision this library supports.
type rawSuperBlock struct {
	InodesCount          uint32
	BlocksCountLo        uint32
	ReservedBlocksLo     uint32
	FreeBlocksCountLo    uint32
	FreeInodesCount      uint32
	FirstDataBlock       uint32
	LogBlockSize         uint32
	LogClusterSize       uint32
	BlocksPerGroup       uint32
	ClustersPerGroup     uint32
	InodesPerGroup       uint32
	Mtime                uint32
	Wtime                uint32
	MountCount           uint16
	MaxMountCount        uint16
	Magic                uint16
	State                uint16
	Errors               uint16
	MinorRevLevel        uint16
	LastCheck            uint32
	CheckInterval        uint32
	CreatorOS            uint32
	RevLevel             uint32
	DefResuid            uint16
	DefResgid            uint16
	FirstIno             uint32
	InodeSize            uint16
	BlockGroupNr         uint16
	FeatureCompat        uint32
	FeatureIncompat      uint32
	FeatureROCompat      uint32
	UUID                 [16]byte
	VolumeName           [16]byte
	LastMounted          [64]byte
	AlgorithmUsageBitmap uint32
	PreallocBlocks       uint8
	PreallocDirBlocks    uint8
	ReservedGdtBlocks    uint16
	JournalUUID          [16]byte
	JournalInum          uint32
	JournalDev           uint32
	LastOrphan           uint32
	HashSeed             [4]uint32
	DefHashVersion       uint8
	JnlBackupType        uint8
	DescSize             uint16
	DefaultMountOpts     uint32
	FirstMetaBg          uint32
	MkfsTime             uint32
	JnlBlocks            [17]uint32
	BlocksCountHi        uint32
	ReservedBlocksHi     uint32
	FreeBlocksCountHi    uint32
	MinExtraIsize        uint16
	WantExtraIsize       uint16
	Flags                uint32
	RaidStride           uint16
	MmpInterval          uint16
	MmpBlock             uint64
	RaidStripeWidth      uint32
	LogGroupsPerFlex     uint8
	ChecksumType         uint8
	ReservedPad          uint16
	KbytesWritten        uint64
	SnapshotInum         uint32
	SnapshotID           uint32
	SnapshotRsrvBlocks   uint64
	SnapshotList         uint32
	ErrorCount           uint32
	FirstErrorTime       uint32
	FirstErrorIno        uint32
	FirstErrorBlock      uint64
	FirstErrorFunc       [32]byte
	FirstErrorLine       uint32
	LastErrorTime        uint32
	LastErrorIno         uint32
	LastErrorLine        uint32
	LastErrorBlock       uint64
	LastErrorFunc        [32]byte
	MountOpts            [64]byte
	UsrQuotaInum         uint32
	GrpQuotaInum         uint32
	OverheadBlocks       uint32
	BackupBgs            [2]uint32
	EncryptAlgos         [4]uint8
	EncryptPwSalt        [16]byte
	LostFoundInode       uint32
	ProjQuotaInum        uint32
	ChecksumSeed         uint32
	WtimeHi              uint8
	MtimeHi              uint8
	MkfsTimeHi           uint8
	LastCheckHi          uint8
	FirstErrorTimeHi     uint8
	LastErrorTimeHi      uint8
	Pad                  [2]byte
	Encoding             uint16
	EncodingFlags        uint16
	OrphanFileInum       uint32
	Reserved             [94]uint32
	Checksum             uint32
}

// SuperBlock is the decoded, immutable filesystem superblock.
type SuperBlock struct {
	raw rawSuperBlock
}

// ParseSuperBlock decodes a SuperBlock from exactly SuperBlockSize bytes
// (the caller is responsible for having read those bytes from
// SuperBlockOffset).
func ParseSuperBlock(b []byte) (*SuperBlock, error) {
	if len(b) < SuperBlockSize {
		return nil, fmt.Errorf("disklayout: superblock buffer too short: %d bytes", len(b))
	}
	var raw rawSuperBlock
	if err := binary.Read(bytes.NewReader(b[:SuperBlockSize]), binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("disklayout: superblock decode: %w", err)
	}
	return &SuperBlock{raw: raw}, nil
}

func (s *SuperBlock) Magic() uint16 { return s.raw.Magic }

// BlockSize returns the filesystem block size in bytes.
func (s *SuperBlock) BlockSize() uint64 { return 1024 << s.raw.LogBlockSize }

// LogBlockSize returns the raw s_log_block_size exponent field.
func (s *SuperBlock) LogBlockSize() uint32 { return s.raw.LogBlockSize }

func (s *SuperBlock) InodesCount() uint32 { return s.raw.InodesCount }

func (s *SuperBlock) BlocksCount() uint64 {
	return uint64(s.raw.BlocksCountHi)<<32 | uint64(s.raw.BlocksCountLo)
}

func (s *SuperBlock) FreeBlocksCount() uint64 {
	return uint64(s.raw.FreeBlocksCountHi)<<32 | uint64(s.raw.FreeBlocksCountLo)
}

func (s *SuperBlock) FreeInodesCount() uint32 { return s.raw.FreeInodesCount }

func (s *SuperBlock) FirstDataBlock() uint32 { return s.raw.FirstDataBlock }

func (s *SuperBlock) BlocksPerGroup() uint32 { return s.raw.BlocksPerGroup }

func (s *SuperBlock) InodesPerGroup() uint32 { return s.raw.InodesPerGroup }

// InodeSize returns the on-disk inode record size. For revision 0
// filesystems this field doesn't exist on disk and the size is fixed at
// OldInodeSize.
func (s *SuperBlock) InodeSize() uint16 {
	if s.raw.RevLevel == 0 {
		return OldInodeSize
	}
	if s.raw.InodeSize == 0 {
		return OldInodeSize
	}
	return s.raw.InodeSize
}

func (s *SuperBlock) RevLevel() uint32 { return s.raw.RevLevel }

func (s *SuperBlock) FirstIno() uint32 {
	if s.raw.RevLevel == 0 {
		return FirstNonReservedInode
	}
	return s.raw.FirstIno
}

func (s *SuperBlock) FeatureCompat() CompatFeatures     { return CompatFeatures(s.raw.FeatureCompat) }
func (s *SuperBlock) FeatureIncompat() IncompatFeatures { return IncompatFeatures(s.raw.FeatureIncompat) }
func (s *SuperBlock) FeatureROCompat() RoCompatFeatures { return RoCompatFeatures(s.raw.FeatureROCompat) }
func (s *SuperBlock) Flags() SuperFlags                 { return SuperFlags(s.raw.Flags) }

// GroupDescSize returns the size in bytes of each block-group descriptor:
// s_desc_size if the 64BIT incompat feature is set and s_desc_size is
// non-zero, otherwise 32 (the legacy descriptor size).
func (s *SuperBlock) GroupDescSize() uint16 {
	if s.FeatureIncompat().Has(Incompat64Bit) && s.raw.DescSize != 0 {
		return s.raw.DescSize
	}
	return 32
}

func (s *SuperBlock) UUID() [16]byte       { return s.raw.UUID }
func (s *SuperBlock) JournalUUID() [16]byte { return s.raw.JournalUUID }

// VolumeName returns the NUL-terminated volume label.
func (s *SuperBlock) VolumeName() string {
	return cStr(s.raw.VolumeName[:])
}

// JournalInode returns s_journal_inum and true when s_feature_compat
// advertises a journal and s_journal_inum is non-zero.
func (s *SuperBlock) JournalInode() (uint32, bool) {
	if !s.FeatureCompat().Has(CompatHasJournal) {
		return 0, false
	}
	if s.raw.JournalInum == 0 {
		return 0, false
	}
	return s.raw.JournalInum, true
}

func (s *SuperBlock) HashSeed() [4]uint32   { return s.raw.HashSeed }
func (s *SuperBlock) DefHashVersion() uint8 { return s.raw.DefHashVersion }

// LogGroupsPerFlex returns the log2 of the number of block groups per
// flex_bg group, or 0 if FLEX_BG is not enabled.
func (s *SuperBlock) LogGroupsPerFlex() uint8 { return s.raw.LogGroupsPerFlex }

func (s *SuperBlock) FirstMetaBg() uint32 { return s.raw.FirstMetaBg }

func (s *SuperBlock) ChecksumSeed() (uint32, bool) {
	if !s.FeatureIncompat().Has(IncompatCsumSeed) {
		return 0, false
	}
	return s.raw.ChecksumSeed, true
}

func (s *SuperBlock) ChecksumType() uint8 { return s.raw.ChecksumType }
func (s *SuperBlock) Checksum() uint32    { return s.raw.Checksum }

// ChecksumRegion returns the bytes of the superblock that are covered by
// its own checksum (all bytes except the checksum field itself).
func (s *SuperBlock) ChecksumRegion(raw []byte) []byte {
	return raw[:SuperBlockSize-4]
}

// State returns s_state (bit 0: cleanly unmounted, bit 1: errors detected).
func (s *SuperBlock) State() uint16 { return s.raw.State }

// CleanlyUnmounted reports whether the EXT2_VALID_FS bit is set and the
// RECOVER incompat flag (indicating an unreplayed journal) is clear.
func (s *SuperBlock) CleanlyUnmounted() bool {
	const validFS = 0x1
	return s.raw.State&validFS != 0 && !s.FeatureIncompat().Has(IncompatRecover)
}

func cStr(b []byte) string {
	n := bytes.IndexByte(b, 0)
	if n < 0 {
		n = len(b)
	}
	return string(b[:n])
}
