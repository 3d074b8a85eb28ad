package ext4fs

import (
	"container/list"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheBlocks is the number of filesystem blocks the block cache
// holds by default.
const DefaultCacheBlocks = 16

// blockCache is a bounded least-recently-used cache of whole filesystem
// blocks, sitting in front of the Reader supplied to Load. An overlay
// (populated by journal replay, if any) is always consulted first: a
// replayed block must never be shadowed by a stale cached copy read
// before replay ran.
type blockCache struct {
	r         Reader
	blockSize uint32
	capacity  int
	overlay   *overlay

	mu      sync.Mutex
	entries map[uint64]*list.Element
	order   *list.List // front = most recently used

	group singleflight.Group
}

type cacheEntry struct {
	block uint64
	data  []byte
}

func newBlockCache(r Reader, blockSize uint32, capacity int, ov *overlay) *blockCache {
	if capacity <= 0 {
		capacity = DefaultCacheBlocks
	}
	if ov == nil {
		ov = newOverlay()
	}
	return &blockCache{
		r:         r,
		blockSize: blockSize,
		capacity:  capacity,
		overlay:   ov,
		entries:   make(map[uint64]*list.Element),
		order:     list.New(),
	}
}

// readBlock returns the full contents of physical block index, from the
// overlay, the cache, or the underlying Reader, in that order.
func (c *blockCache) readBlock(block uint64) ([]byte, error) {
	if data, ok := c.overlay.get(block); ok {
		return data, nil
	}

	if data, ok := c.lookup(block); ok {
		return data, nil
	}

	// singleflight collapses concurrent misses on the same block into a
	// single underlying read.
	v, err, _ := c.group.Do(mapKey(block), func() (interface{}, error) {
		if data, ok := c.lookup(block); ok {
			return data, nil
		}
		buf := make([]byte, c.blockSize)
		off := int64(block) * int64(c.blockSize)
		if err := readFull(c.r, off, buf); err != nil {
			return nil, err
		}
		c.insert(block, buf)
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *blockCache) lookup(block uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[block]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).data, true
}

func (c *blockCache) insert(block uint64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[block]; ok {
		el.Value.(*cacheEntry).data = data
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{block: block, data: data})
	c.entries[block] = el
	for c.order.Len() > c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.order.Remove(back)
		delete(c.entries, back.Value.(*cacheEntry).block)
	}
}

// readBytes reads length bytes at absolute byte offset off, stitching
// together as many blocks as necessary.
func (c *blockCache) readBytes(off uint64, length int) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	out := make([]byte, 0, length)
	bs := uint64(c.blockSize)
	for len(out) < length {
		cur := off + uint64(len(out))
		block := cur / bs
		withinBlock := cur % bs
		data, err := c.readBlock(block)
		if err != nil {
			return nil, err
		}
		n := copy(out[len(out):cap(out)], data[withinBlock:])
		out = out[:len(out)+n]
		if n == 0 {
			// Defensive: data[withinBlock:] was empty, which cannot
			// happen for a well-formed block, but avoid spinning.
			return nil, corruptErr("block cache made no progress stitching bytes")
		}
	}
	return out, nil
}

// mapKey renders a block index as a singleflight key.
func mapKey(block uint64) string {
	var buf [20]byte
	n := len(buf)
	if block == 0 {
		return "0"
	}
	for block > 0 {
		n--
		buf[n] = byte('0' + block%10)
		block /= 10
	}
	return string(buf[n:])
}
