package disklayout

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// rawGroupDesc32 is the legacy 32-byte block-group descriptor.
type rawGroupDesc32 struct {
	BlockBitmapLo     uint32
	InodeBitmapLo     uint32
	InodeTableLo      uint32
	FreeBlocksCountLo uint16
	FreeInodesCountLo uint16
	UsedDirsCountLo   uint16
	Flags             uint16
	ExcludeBitmapLo   uint32
	BlockBitmapCsumLo uint16
	InodeBitmapCsumLo uint16
	ItableUnusedLo    uint16
	Checksum          uint16
}

// rawGroupDesc64Ext is the second half of a 64-byte descriptor, present
// only when the 64BIT incompat feature is set.
type rawGroupDesc64Ext struct {
	BlockBitmapHi     uint32
	InodeBitmapHi     uint32
	InodeTableHi      uint32
	FreeBlocksCountHi uint16
	FreeInodesCountHi uint16
	UsedDirsCountHi   uint16
	ItableUnusedHi    uint16
	ExcludeBitmapHi   uint32
	BlockBitmapCsumHi uint16
	InodeBitmapCsumHi uint16
	Reserved          uint32
}

// GroupDescriptor is a decoded block-group descriptor, transparently
// combining the lo/hi halves regardless of whether the source was a
// 32-byte or 64-byte on-disk record.
type GroupDescriptor struct {
	lo  rawGroupDesc32
	hi  rawGroupDesc64Ext
	has64 bool
}

// ParseGroupDescriptor decodes one descriptor of descSize bytes (32 or
// 64) from b.
func ParseGroupDescriptor(b []byte, descSize uint16) (*GroupDescriptor, error) {
	if len(b) < int(descSize) {
		return nil, fmt.Errorf("disklayout: group descriptor buffer too short: %d < %d", len(b), descSize)
	}
	var gd GroupDescriptor
	r := bytes.NewReader(b)
	if err := binary.Read(r, binary.LittleEndian, &gd.lo); err != nil {
		return nil, fmt.Errorf("disklayout: group descriptor decode: %w", err)
	}
	if descSize >= 64 {
		if err := binary.Read(r, binary.LittleEndian, &gd.hi); err != nil {
			return nil, fmt.Errorf("disklayout: group descriptor hi-half decode: %w", err)
		}
		gd.has64 = true
	}
	return &gd, nil
}

func (g *GroupDescriptor) BlockBitmap() uint64 {
	return uint64(g.hi.BlockBitmapHi)<<32 | uint64(g.lo.BlockBitmapLo)
}

func (g *GroupDescriptor) InodeBitmap() uint64 {
	return uint64(g.hi.InodeBitmapHi)<<32 | uint64(g.lo.InodeBitmapLo)
}

func (g *GroupDescriptor) InodeTable() uint64 {
	return uint64(g.hi.InodeTableHi)<<32 | uint64(g.lo.InodeTableLo)
}

func (g *GroupDescriptor) FreeBlocksCount() uint32 {
	return uint32(g.hi.FreeBlocksCountHi)<<16 | uint32(g.lo.FreeBlocksCountLo)
}

func (g *GroupDescriptor) FreeInodesCount() uint32 {
	return uint32(g.hi.FreeInodesCountHi)<<16 | uint32(g.lo.FreeInodesCountLo)
}

func (g *GroupDescriptor) UsedDirsCount() uint32 {
	return uint32(g.hi.UsedDirsCountHi)<<16 | uint32(g.lo.UsedDirsCountLo)
}

func (g *GroupDescriptor) ItableUnused() uint32 {
	return uint32(g.hi.ItableUnusedHi)<<16 | uint32(g.lo.ItableUnusedLo)
}

func (g *GroupDescriptor) Checksum() uint16 { return g.lo.Checksum }

// GroupFlags are the bg_flags bits.
type GroupFlags uint16

const (
	GroupFlagInodeUninit GroupFlags = 0x1
	GroupFlagBlockUninit GroupFlags = 0x2
	GroupFlagInodeZeroed GroupFlags = 0x4
)

func (g *GroupDescriptor) Flags() GroupFlags { return GroupFlags(g.lo.Flags) }
