// Package buftxn buffers the object writes of one filesystem operation.
//
// Reads load objects from the block cache on first use and are then served
// from the operation's own copy, so an operation sees its own writes. Nothing
// reaches the cache until Commit, which installs every dirty object into its
// block and writes the blocks back. An operation that fails part way is
// simply dropped, leaving the cache untouched.
//
// Objects have sizes. Implicit in the code is that there is a static "schema"
// that determines the disk layout: each block holds objects of one size
// (whole blocks, 128-byte inodes), so objects never overlap as long as callers
// use the right size for each block number.
package buftxn

import (
	"github.com/mit-pdos/go-easyfs/addr"
	"github.com/mit-pdos/go-easyfs/bcache"
	"github.com/mit-pdos/go-easyfs/buf"
	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/disk"
	"github.com/mit-pdos/go-easyfs/util"
)

type BufTxn struct {
	cache *bcache.Bcache
	bufs  *buf.BufMap // map of bufs read/written by this operation
}

func Begin(cache *bcache.Bcache) *BufTxn {
	trans := &BufTxn{
		cache: cache,
		bufs:  buf.MkBufMap(),
	}
	util.DPrintf(5, "Begin: %p\n", trans)
	return trans
}

// ReadBuf returns the object of sz bits at addr.
func (buftxn *BufTxn) ReadBuf(addr addr.Addr, sz uint64) (*buf.Buf, error) {
	b := buftxn.bufs.Lookup(addr)
	if b == nil {
		blk, err := buftxn.cache.Read(addr.Blkno)
		if err != nil {
			return nil, err
		}
		b = buf.MkBufLoad(addr, sz, blk)
		buftxn.bufs.Insert(b)
	} else if b.Sz != sz {
		panic("ReadBuf: object size changed")
	}
	return b, nil
}

// ReadBlock returns the whole block bn.
func (buftxn *BufTxn) ReadBlock(bn common.Bnum) (*buf.Buf, error) {
	return buftxn.ReadBuf(addr.MkBlockAddr(bn), common.NBITBLOCK)
}

// Caller overwrites addr without reading it
func (buftxn *BufTxn) OverWrite(addr addr.Addr, sz uint64, data []byte) {
	b := buftxn.bufs.Lookup(addr)
	if b == nil {
		b = buf.MkBuf(addr, sz, data)
		buftxn.bufs.Insert(b)
	} else {
		if sz != b.Sz {
			panic("overwrite")
		}
		b.Data = data
	}
	b.SetDirty()
}

// ZeroBlock overwrites block bn with zeroes.
func (buftxn *BufTxn) ZeroBlock(bn common.Bnum) {
	buftxn.OverWrite(addr.MkBlockAddr(bn), common.NBITBLOCK, make([]byte, disk.BlockSize))
}

// NDirty reports how many objects this operation has modified.
func (buftxn *BufTxn) NDirty() uint64 {
	return buftxn.bufs.Ndirty()
}

// Installs the dirty bufs into their blocks and returns the blocks in the
// order they were first touched. A buf may only partially update a disk block
// and several bufs may apply to the same disk block.
func (buftxn *BufTxn) installBufs(bufs []*buf.Buf) (map[common.Bnum]disk.Block, []common.Bnum, error) {
	blks := make(map[common.Bnum]disk.Block)
	order := make([]common.Bnum, 0, len(bufs))
	for _, b := range bufs {
		blkno := b.Addr.Blkno
		if b.IsBlock() {
			if _, ok := blks[blkno]; !ok {
				order = append(order, blkno)
			}
			blks[blkno] = b.Data
			continue
		}
		blk, ok := blks[blkno]
		if !ok {
			var err error
			blk, err = buftxn.cache.Read(blkno)
			if err != nil {
				return nil, nil, err
			}
			blks[blkno] = blk
			order = append(order, blkno)
		}
		b.Install(blk)
	}
	return blks, order, nil
}

// Commit writes the dirty bufs of this operation to the cache, one block at a
// time. Cache writes are assumed to succeed: an eviction write-back that fails
// part way leaves the operation partially applied.
func (buftxn *BufTxn) Commit() error {
	bufs := buftxn.bufs.DirtyBufs()
	if len(bufs) == 0 {
		util.DPrintf(5, "commit read-only op %p\n", buftxn)
		return nil
	}
	blks, order, err := buftxn.installBufs(bufs)
	if err != nil {
		return err
	}
	util.DPrintf(3, "Commit %p: %d bufs in %d blocks\n", buftxn, len(bufs), len(order))
	for _, blkno := range order {
		if err := buftxn.cache.Write(blkno, blks[blkno]); err != nil {
			return err
		}
	}
	buftxn.bufs = buf.MkBufMap()
	return nil
}
