// Package super describes the on-disk layout of an easy filesystem.
//
// Block 0 holds the superblock; the inode bitmap, inode area, data bitmap and
// data area follow it contiguously in that order.
package super

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-easyfs/addr"
	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/disk"
	"github.com/mit-pdos/go-easyfs/util"
)

const (
	SUPERBLK common.Bnum = 0

	nfield  = 6
	uuidOff = nfield * 8
)

type FsSuper struct {
	Magic        uint64
	TotalBlocks  uint64
	NInodeBitmap uint64
	NInodeBlk    uint64
	NDataBitmap  uint64
	NDataBlk     uint64
	UUID         uuid.UUID
}

// Layout computes the extents for a filesystem of total blocks holding at
// least inodes inodes. The inode count is rounded up to fill whole blocks.
func Layout(total uint64, inodes uint64) (*FsSuper, error) {
	if inodes == 0 {
		return nil, fmt.Errorf("%w: no inodes", common.ErrInvalidArgument)
	}
	ninodeblk := util.RoundUp(inodes, common.INODEBLK)
	ninodebitmap := util.RoundUp(ninodeblk*common.INODEBLK, common.NBITBLOCK)
	meta := 1 + ninodebitmap + ninodeblk
	if total <= meta+1 {
		return nil, fmt.Errorf("%w: %d blocks cannot hold %d inodes",
			common.ErrInvalidArgument, total, inodes)
	}
	remaining := total - meta
	// each data block costs one bit of bitmap in addition to itself
	ndatabitmap := util.RoundUp(remaining, common.NBITBLOCK+1)
	ndatablk := remaining - ndatabitmap
	return &FsSuper{
		Magic:        common.MAGIC,
		TotalBlocks:  total,
		NInodeBitmap: ninodebitmap,
		NInodeBlk:    ninodeblk,
		NDataBitmap:  ndatabitmap,
		NDataBlk:     ndatablk,
		UUID:         uuid.New(),
	}, nil
}

func (fs *FsSuper) InodeBitmapStart() common.Bnum {
	return SUPERBLK + 1
}

func (fs *FsSuper) InodeStart() common.Bnum {
	return fs.InodeBitmapStart() + common.Bnum(fs.NInodeBitmap)
}

func (fs *FsSuper) DataBitmapStart() common.Bnum {
	return fs.InodeStart() + common.Bnum(fs.NInodeBlk)
}

func (fs *FsSuper) DataStart() common.Bnum {
	return fs.DataBitmapStart() + common.Bnum(fs.NDataBitmap)
}

func (fs *FsSuper) MaxBnum() common.Bnum {
	return common.Bnum(fs.TotalBlocks)
}

func (fs *FsSuper) NInode() common.Inum {
	return common.Inum(fs.NInodeBlk * common.INODEBLK)
}

// Inum2Addr locates the on-disk record of inode inum.
func (fs *FsSuper) Inum2Addr(inum common.Inum) addr.Addr {
	return addr.MkAddr(fs.InodeStart()+common.Bnum(uint64(inum)/common.INODEBLK),
		(uint64(inum)%common.INODEBLK)*common.INODESZ*8)
}

// IsData reports whether bn lies in the data area.
func (fs *FsSuper) IsData(bn common.Bnum) bool {
	return bn >= fs.DataStart() && bn < fs.DataStart()+common.Bnum(fs.NDataBlk)
}

func (fs *FsSuper) Encode() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInts([]uint64{fs.Magic, fs.TotalBlocks, fs.NInodeBitmap,
		fs.NInodeBlk, fs.NDataBitmap, fs.NDataBlk})
	blk := enc.Finish()
	copy(blk[uuidOff:], fs.UUID[:])
	return blk
}

// Decode parses and validates a superblock.
func Decode(blk disk.Block) (*FsSuper, error) {
	dec := marshal.NewDec(blk)
	f := dec.GetInts(nfield)
	fs := &FsSuper{
		Magic:        f[0],
		TotalBlocks:  f[1],
		NInodeBitmap: f[2],
		NInodeBlk:    f[3],
		NDataBitmap:  f[4],
		NDataBlk:     f[5],
	}
	copy(fs.UUID[:], blk[uuidOff:uuidOff+16])
	if fs.Magic != common.MAGIC {
		return nil, fmt.Errorf("%w: bad magic %#x", common.ErrInconsistent, fs.Magic)
	}
	if 1+fs.NInodeBitmap+fs.NInodeBlk+fs.NDataBitmap+fs.NDataBlk != fs.TotalBlocks {
		return nil, fmt.Errorf("%w: extents do not add up to %d blocks",
			common.ErrInconsistent, fs.TotalBlocks)
	}
	if fs.NInodeBlk*common.INODEBLK > fs.NInodeBitmap*common.NBITBLOCK ||
		fs.NDataBlk > fs.NDataBitmap*common.NBITBLOCK {
		return nil, fmt.Errorf("%w: bitmap too small for its area", common.ErrInconsistent)
	}
	return fs, nil
}
