// Package crc32c computes the CRC-32C (Castagnoli) checksums used
// throughout the ext4 on-disk format for superblock, group-descriptor,
// inode, extent-tail, and journal-block integrity checks.
package crc32c

import "hash/crc32"

var table = crc32.MakeTable(crc32.Castagnoli)

// DefaultSeed is the standard CRC32C initial register value, documented
// here because callers chaining a checksum (UUID, then inode number,
// then inode body) need to know what "no prior chunk" means; New
// itself uses crc32.Update's own zero-value convention, not this
// constant directly (see Write).
const DefaultSeed = 0xffffffff

// Digest accumulates a chained CRC32C computation. crc32.Update treats
// its crc argument as a previously-finalized checksum value and
// returns one too, so a Digest's internal state is always "checksum so
// far", not a raw register: New's zero value already represents "no
// bytes written yet" in that convention, and Sum32 needs no further
// finalization step.
type Digest struct {
	crc uint32
}

// New starts a digest with no prior input.
func New() *Digest { return &Digest{} }

// NewSeeded starts a digest chained from a previously computed CRC32C
// value, as used when a filesystem's s_checksum_seed (derived from the
// volume UUID) feeds into every other metadata checksum.
func NewSeeded(seed uint32) *Digest { return &Digest{crc: seed} }

// Write extends the digest with more data. It never returns an error.
func (d *Digest) Write(p []byte) (int, error) {
	d.crc = crc32.Update(d.crc, table, p)
	return len(p), nil
}

// WriteUint16LE extends the digest with a little-endian uint16.
func (d *Digest) WriteUint16LE(v uint16) {
	_, _ = d.Write([]byte{byte(v), byte(v >> 8)})
}

// WriteUint32LE extends the digest with a little-endian uint32.
func (d *Digest) WriteUint32LE(v uint32) {
	_, _ = d.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// Sum32 returns the finalized checksum.
func (d *Digest) Sum32() uint32 { return d.crc }

// Raw returns the same finalized value as Sum32, exposed separately so
// chaining call sites (seed := crc32c.New()...Raw(); crc32c.NewSeeded(seed)) read
// as "take this checksum and keep going" rather than implying a second
// finalization step.
func (d *Digest) Raw() uint32 { return d.crc }

// Checksum is a convenience one-shot CRC32C over data with the default
// seed.
func Checksum(data []byte) uint32 {
	return New().writeAndSum(data)
}

func (d *Digest) writeAndSum(data []byte) uint32 {
	_, _ = d.Write(data)
	return d.Sum32()
}
