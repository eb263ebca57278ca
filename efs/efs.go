// Package efs is the filesystem manager: it formats and mounts an image,
// owns the superblock and the two bitmaps, and hands out inode ids and data
// blocks inside an operation.
//
// The manager does no locking of its own. Callers serialize operations with
// Lock/Unlock, one critical section per operation.
package efs

import (
	"fmt"
	"sync"

	"github.com/mit-pdos/go-easyfs/addr"
	"github.com/mit-pdos/go-easyfs/alloc"
	"github.com/mit-pdos/go-easyfs/bcache"
	"github.com/mit-pdos/go-easyfs/buftxn"
	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/disk"
	"github.com/mit-pdos/go-easyfs/inode"
	"github.com/mit-pdos/go-easyfs/super"
	"github.com/mit-pdos/go-easyfs/util"
)

// Params control formatting and mounting.
type Params struct {
	// TotalBlocks is the filesystem size; 0 means the whole device.
	TotalBlocks uint64
	// Inodes is the minimum number of inodes; 0 means one per 4 blocks.
	Inodes uint64
	// CacheBlocks bounds the block cache; 0 means bcache.DefaultCapacity.
	CacheBlocks uint64
}

type EasyFileSystem struct {
	mu     sync.Mutex
	cache  *bcache.Bcache
	super  *super.FsSuper
	ialloc *alloc.Alloc
	balloc *alloc.Alloc
}

func mkFs(cache *bcache.Bcache, sup *super.FsSuper) *EasyFileSystem {
	return &EasyFileSystem{
		cache:  cache,
		super:  sup,
		ialloc: alloc.MkAlloc(sup.InodeBitmapStart(), sup.NInodeBitmap, uint64(sup.NInode())),
		balloc: alloc.MkAlloc(sup.DataBitmapStart(), sup.NDataBitmap, sup.NDataBlk),
	}
}

// Create formats d and returns the mounted filesystem. The new filesystem
// holds only the root directory, which is empty.
func Create(d disk.Disk, p Params) (*EasyFileSystem, error) {
	sz, err := d.Size()
	if err != nil {
		return nil, err
	}
	total := p.TotalBlocks
	if total == 0 {
		total = sz
	}
	if total > sz {
		return nil, fmt.Errorf("%w: %d blocks on a %d block device",
			common.ErrInvalidArgument, total, sz)
	}
	inodes := p.Inodes
	if inodes == 0 {
		inodes = util.RoundUp(total, 4)
	}
	sup, err := super.Layout(total, inodes)
	if err != nil {
		return nil, err
	}
	util.DPrintf(1, "Create: %d blocks, %d inodes, data at %d\n",
		total, sup.NInode(), sup.DataStart())

	fs := mkFs(bcache.MkBcache(d, p.CacheBlocks), sup)
	// metadata blocks are zeroed whole before the inode area is used at
	// inode granularity
	op := fs.Begin()
	for bn := common.Bnum(0); bn < sup.DataStart(); bn++ {
		op.ZeroBlock(bn)
	}
	if err := op.Commit(); err != nil {
		return nil, err
	}

	op = fs.Begin()
	op.OverWrite(addr.MkBlockAddr(super.SUPERBLK), common.NBITBLOCK, sup.Encode())
	if err := fs.ialloc.MarkUsed(op, uint64(common.ROOTINUM)); err != nil {
		return nil, err
	}
	fs.StoreInode(op, common.ROOTINUM, inode.MkInode(common.KindDir))
	if err := op.Commit(); err != nil {
		return nil, err
	}
	if err := fs.Sync(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Open mounts the filesystem on d.
func Open(d disk.Disk, cacheBlocks uint64) (*EasyFileSystem, error) {
	blk, err := d.Read(super.SUPERBLK)
	if err != nil {
		return nil, err
	}
	sup, err := super.Decode(blk)
	if err != nil {
		return nil, err
	}
	sz, err := d.Size()
	if err != nil {
		return nil, err
	}
	if sup.MaxBnum() > sz {
		return nil, fmt.Errorf("%w: superblock claims %d blocks, device has %d",
			common.ErrInconsistent, sup.TotalBlocks, sz)
	}
	util.DPrintf(1, "Open: volume %s, %d blocks\n", sup.UUID, sup.TotalBlocks)
	return mkFs(bcache.MkBcache(d, cacheBlocks), sup), nil
}

func (fs *EasyFileSystem) Super() *super.FsSuper {
	return fs.super
}

func (fs *EasyFileSystem) Root() common.Inum {
	return common.ROOTINUM
}

// Begin starts an operation. Its writes reach the cache only on Commit.
func (fs *EasyFileSystem) Begin() *buftxn.BufTxn {
	return buftxn.Begin(fs.cache)
}

func (fs *EasyFileSystem) Lock() {
	fs.mu.Lock()
}

func (fs *EasyFileSystem) Unlock() {
	fs.mu.Unlock()
}

func (fs *EasyFileSystem) checkInum(inum common.Inum) error {
	if inum >= fs.super.NInode() {
		return fmt.Errorf("%w: inode %d out of range %d",
			common.ErrInvalidArgument, inum, fs.super.NInode())
	}
	return nil
}

func (fs *EasyFileSystem) InodeAddr(inum common.Inum) addr.Addr {
	return fs.super.Inum2Addr(inum)
}

func (fs *EasyFileSystem) LoadInode(op *buftxn.BufTxn, inum common.Inum) (*inode.DiskInode, error) {
	if err := fs.checkInum(inum); err != nil {
		return nil, err
	}
	return inode.Load(op, fs.InodeAddr(inum))
}

func (fs *EasyFileSystem) StoreInode(op *buftxn.BufTxn, inum common.Inum, ip *inode.DiskInode) {
	ip.Store(op, fs.InodeAddr(inum))
}

// Stat loads the record of an allocated inode. A free inode is not found.
func (fs *EasyFileSystem) Stat(op *buftxn.BufTxn, inum common.Inum) (*inode.DiskInode, error) {
	if err := fs.checkInum(inum); err != nil {
		return nil, err
	}
	used, err := fs.ialloc.IsUsed(op, uint64(inum))
	if err != nil {
		return nil, err
	}
	if !used {
		return nil, fmt.Errorf("%w: inode %d is free", common.ErrNotFound, inum)
	}
	ip, err := fs.LoadInode(op, inum)
	if err != nil {
		return nil, err
	}
	if ip.IsFree() {
		return nil, fmt.Errorf("%w: allocated inode %d has no kind", common.ErrInconsistent, inum)
	}
	return ip, nil
}

// AllocInode allocates the lowest free inode id and initializes its record
// as an empty inode of kind with one link.
func (fs *EasyFileSystem) AllocInode(op *buftxn.BufTxn, kind common.Kind) (common.Inum, error) {
	n, err := fs.ialloc.AllocNum(op)
	if err != nil {
		return 0, err
	}
	inum := common.Inum(n)
	old, err := fs.LoadInode(op, inum)
	if err != nil {
		return 0, err
	}
	if !old.IsFree() {
		return 0, fmt.Errorf("%w: free inode %d has kind %v", common.ErrInconsistent, inum, old.Kind)
	}
	fs.StoreInode(op, inum, inode.MkInode(kind))
	util.DPrintf(1, "AllocInode: %d (%v)\n", inum, kind)
	return inum, nil
}

// DeallocInode frees every block of inum, zeroes its record and clears its
// bitmap bit.
func (fs *EasyFileSystem) DeallocInode(op *buftxn.BufTxn, inum common.Inum) error {
	if inum == common.ROOTINUM {
		return fmt.Errorf("%w: cannot free the root", common.ErrInvalidArgument)
	}
	ip, err := fs.LoadInode(op, inum)
	if err != nil {
		return err
	}
	blocks, err := ip.ClearSize(op)
	if err != nil {
		return err
	}
	if err := fs.DeallocData(op, blocks); err != nil {
		return err
	}
	fs.StoreInode(op, inum, &inode.DiskInode{})
	util.DPrintf(1, "DeallocInode: %d, %d blocks\n", inum, len(blocks))
	return fs.ialloc.FreeNum(op, uint64(inum))
}

// AllocData allocates n data blocks, returned as absolute block numbers.
func (fs *EasyFileSystem) AllocData(op *buftxn.BufTxn, n uint64) ([]common.Bnum, error) {
	bns := make([]common.Bnum, 0, n)
	for i := uint64(0); i < n; i++ {
		k, err := fs.balloc.AllocNum(op)
		if err != nil {
			return nil, err
		}
		bns = append(bns, fs.super.DataStart()+k)
	}
	util.DPrintf(5, "AllocData: %v\n", bns)
	return bns, nil
}

func (fs *EasyFileSystem) DeallocData(op *buftxn.BufTxn, bns []common.Bnum) error {
	for _, bn := range bns {
		if !fs.super.IsData(bn) {
			return fmt.Errorf("%w: block %d is not a data block", common.ErrInconsistent, bn)
		}
		if err := fs.balloc.FreeNum(op, bn-fs.super.DataStart()); err != nil {
			return err
		}
	}
	return nil
}

// InodeUsed reports the inode bitmap bit of inum.
func (fs *EasyFileSystem) InodeUsed(op *buftxn.BufTxn, inum common.Inum) (bool, error) {
	if err := fs.checkInum(inum); err != nil {
		return false, err
	}
	return fs.ialloc.IsUsed(op, uint64(inum))
}

// DataUsed reports the data bitmap bit of data block bn.
func (fs *EasyFileSystem) DataUsed(op *buftxn.BufTxn, bn common.Bnum) (bool, error) {
	if !fs.super.IsData(bn) {
		return false, fmt.Errorf("%w: block %d is not a data block", common.ErrInvalidArgument, bn)
	}
	return fs.balloc.IsUsed(op, bn-fs.super.DataStart())
}

// NumFree counts free inodes and free data blocks.
func (fs *EasyFileSystem) NumFree(op *buftxn.BufTxn) (inodes uint64, blocks uint64, err error) {
	inodes, err = fs.ialloc.NumFree(op)
	if err != nil {
		return 0, 0, err
	}
	blocks, err = fs.balloc.NumFree(op)
	return inodes, blocks, err
}

// Sync writes every dirty cached block to the device.
func (fs *EasyFileSystem) Sync() error {
	return fs.cache.Flush()
}

// CacheStats reports block cache hits and misses.
func (fs *EasyFileSystem) CacheStats() (hits uint64, misses uint64) {
	return fs.cache.Stats()
}

// Close syncs and closes the device.
func (fs *EasyFileSystem) Close() error {
	util.DPrintf(1, "Close\n")
	return fs.cache.Close()
}
