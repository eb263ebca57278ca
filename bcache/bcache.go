// Package bcache is a bounded write-back cache of disk blocks.
//
// All filesystem access to the device goes through a Bcache. Blocks are
// handed out as private copies; writes replace the cached block and mark it
// dirty. When the cache is full the least recently used block is evicted,
// and written back first if it is dirty.
package bcache

import (
	"container/list"

	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/disk"
	"github.com/mit-pdos/go-easyfs/util"
)

// DefaultCapacity is the number of blocks cached when none is configured.
const DefaultCapacity uint64 = 16

type entry struct {
	bn    common.Bnum
	blk   disk.Block
	dirty bool
}

type Bcache struct {
	d        disk.Disk
	capacity uint64
	lru      *list.List // front is most recently used
	blocks   map[common.Bnum]*list.Element

	hits   uint64
	misses uint64
}

func MkBcache(d disk.Disk, capacity uint64) *Bcache {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	return &Bcache{
		d:        d,
		capacity: capacity,
		lru:      list.New(),
		blocks:   make(map[common.Bnum]*list.Element),
	}
}

func (bc *Bcache) writeBack(e *entry) error {
	if !e.dirty {
		return nil
	}
	util.DPrintf(15, "bcache: write back %d\n", e.bn)
	if err := bc.d.Write(e.bn, e.blk); err != nil {
		return err
	}
	e.dirty = false
	return nil
}

// make room for one more block
func (bc *Bcache) evict() error {
	for uint64(bc.lru.Len()) >= bc.capacity {
		el := bc.lru.Back()
		e := el.Value.(*entry)
		if err := bc.writeBack(e); err != nil {
			return err
		}
		util.DPrintf(15, "bcache: evict %d\n", e.bn)
		bc.lru.Remove(el)
		delete(bc.blocks, e.bn)
	}
	return nil
}

func (bc *Bcache) get(bn common.Bnum, load bool) (*entry, error) {
	if el, ok := bc.blocks[bn]; ok {
		bc.hits++
		bc.lru.MoveToFront(el)
		return el.Value.(*entry), nil
	}
	bc.misses++
	if err := bc.evict(); err != nil {
		return nil, err
	}
	var blk disk.Block
	if load {
		b, err := bc.d.Read(bn)
		if err != nil {
			return nil, err
		}
		blk = b
	} else {
		blk = make(disk.Block, disk.BlockSize)
	}
	e := &entry{bn: bn, blk: blk}
	bc.blocks[bn] = bc.lru.PushFront(e)
	return e, nil
}

// Read returns a copy of block bn.
func (bc *Bcache) Read(bn common.Bnum) (disk.Block, error) {
	e, err := bc.get(bn, true)
	if err != nil {
		return nil, err
	}
	util.DPrintf(20, "bcache: read %d\n", bn)
	return util.CloneByteSlice(e.blk), nil
}

// Write replaces the contents of block bn. The device is updated when the
// block is evicted or flushed.
func (bc *Bcache) Write(bn common.Bnum, blk disk.Block) error {
	if uint64(len(blk)) != disk.BlockSize {
		panic("bcache: write of partial block")
	}
	e, err := bc.get(bn, false)
	if err != nil {
		return err
	}
	util.DPrintf(20, "bcache: write %d\n", bn)
	copy(e.blk, blk)
	e.dirty = true
	return nil
}

// Flush writes every dirty block to the device and waits for it to persist.
func (bc *Bcache) Flush() error {
	for el := bc.lru.Back(); el != nil; el = el.Prev() {
		if err := bc.writeBack(el.Value.(*entry)); err != nil {
			return err
		}
	}
	return bc.d.Barrier()
}

// Size reports the size of the underlying device in blocks.
func (bc *Bcache) Size() (uint64, error) {
	return bc.d.Size()
}

// Len is the number of blocks currently cached.
func (bc *Bcache) Len() uint64 {
	return uint64(bc.lru.Len())
}

// Stats reports cache hits and misses since creation.
func (bc *Bcache) Stats() (hits uint64, misses uint64) {
	return bc.hits, bc.misses
}

// Close flushes the cache and closes the device.
func (bc *Bcache) Close() error {
	if err := bc.Flush(); err != nil {
		return err
	}
	return bc.d.Close()
}
