package ext4fs

import (
	"github.com/gbuilds/ext4fs/crc32c"
	"github.com/gbuilds/ext4fs/disklayout"
)

// supportedIncompat is the full set of INCOMPAT feature bits this
// library understands well enough to read safely. Anything else causes
// Load to fail with KindIncompatible rather than silently misreading
// the volume.
const supportedIncompat = disklayout.IncompatFeatures(
	disklayout.IncompatFileType |
		disklayout.IncompatExtents |
		disklayout.IncompatRecover |
		disklayout.Incompat64Bit |
		disklayout.IncompatFlexBG |
		disklayout.IncompatCsumSeed |
		disklayout.IncompatLargeDir |
		disklayout.IncompatInlineData |
		disklayout.IncompatMetaBG |
		disklayout.IncompatMMP |
		disklayout.IncompatEncrypt |
		disklayout.IncompatDirData,
)

// supportedRoCompat is the full set of RO_COMPAT feature bits this
// library understands. A filesystem may carry other RO_COMPAT bits
// safely (the name promises only that writers must treat it read-only),
// so unsupported ones are tolerated rather than rejected.
const supportedRoCompat = disklayout.RoCompatFeatures(
	disklayout.RoCompatSparseSuper |
		disklayout.RoCompatLargeFile |
		disklayout.RoCompatHugeFile |
		disklayout.RoCompatGdtCsum |
		disklayout.RoCompatDirNlink |
		disklayout.RoCompatExtraIsize |
		disklayout.RoCompatMetadataCsum,
)

func loadSuperblock(r Reader) (*disklayout.SuperBlock, error) {
	buf := make([]byte, disklayout.SuperBlockSize)
	if err := readFull(r, disklayout.SuperBlockOffset, buf); err != nil {
		return nil, err
	}
	sb, err := disklayout.ParseSuperBlock(buf)
	if err != nil {
		return nil, corruptErr(err.Error())
	}
	if sb.Magic() != disklayout.SuperBlockMagic {
		return nil, corruptErr("bad superblock magic")
	}
	if err := validateSuperblock(sb, buf); err != nil {
		return nil, err
	}
	return sb, nil
}

func validateSuperblock(sb *disklayout.SuperBlock, raw []byte) error {
	logSize := sb.LogBlockSize()
	if logSize < disklayout.MinBlockLogSize || logSize > disklayout.MaxBlockLogSize {
		return corruptErr("block size out of range")
	}

	incompat := sb.FeatureIncompat()
	if unsupported := incompat &^ supportedIncompat; unsupported != 0 {
		return incompatibleErr("unsupported incompat features: " + unsupported.String())
	}

	if incompat.Has(disklayout.IncompatMetaBG) && !incompat.Has(disklayout.IncompatFlexBG) {
		// meta_bg without flex_bg is only safe when s_first_meta_bg
		// actually accounts for every group descriptor block; without
		// flex_bg's looser block-group layout guarantees this library
		// cannot verify that cheaply, so it is rejected rather than
		// risk walking off the descriptor table.
		return incompatibleErr("meta_bg without flex_bg is not supported")
	}

	if sb.InodeSize() < disklayout.OldInodeSize {
		return corruptErr("inode size smaller than minimum")
	}

	if err := verifySuperblockChecksum(sb, raw); err != nil {
		return err
	}

	return nil
}

func verifySuperblockChecksum(sb *disklayout.SuperBlock, raw []byte) error {
	if !sb.FeatureROCompat().Has(disklayout.RoCompatMetadataCsum) {
		return nil
	}
	region := sb.ChecksumRegion(raw)
	want := sb.Checksum()
	got := crc32c.Checksum(region)
	if got != want {
		return corruptErr("superblock checksum mismatch")
	}
	return nil
}

// blockSizeOf returns the filesystem's block size in bytes.
func blockSizeOf(sb *disklayout.SuperBlock) uint32 {
	return uint32(sb.BlockSize())
}
