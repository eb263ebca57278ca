// Package inode implements the on-disk inode record and the block-pointer
// tree that maps a file's byte offsets to data blocks.
//
// An inode has NDIRECT direct pointers, one single-indirect pointer (to a
// block of NINDIRECT pointers) and one double-indirect pointer (to a block of
// single-indirect pointers). A null pointer is block 0, which always holds
// the superblock. The number of non-null data pointers is always
// ceil(Size/BlockSize).
package inode

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-easyfs/addr"
	"github.com/mit-pdos/go-easyfs/buftxn"
	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/disk"
	"github.com/mit-pdos/go-easyfs/util"
)

type DiskInode struct {
	Kind      common.Kind
	Size      uint64
	Nlink     uint64
	Direct    [common.NDIRECT]common.Bnum
	Indirect1 common.Bnum
	Indirect2 common.Bnum
}

// MkInode returns an empty inode of the given kind with one link.
func MkInode(kind common.Kind) *DiskInode {
	return &DiskInode{Kind: kind, Nlink: 1}
}

func (ip *DiskInode) IsDir() bool {
	return ip.Kind == common.KindDir
}

func (ip *DiskInode) IsFree() bool {
	return ip.Kind == common.KindFree
}

func (ip *DiskInode) Encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt(uint64(ip.Kind))
	enc.PutInt(ip.Size)
	enc.PutInt(ip.Nlink)
	enc.PutInts(ip.Direct[:])
	enc.PutInt(ip.Indirect1)
	enc.PutInt(ip.Indirect2)
	return enc.Finish()
}

func Decode(data []byte) *DiskInode {
	ip := &DiskInode{}
	dec := marshal.NewDec(data)
	ip.Kind = common.Kind(dec.GetInt())
	ip.Size = dec.GetInt()
	ip.Nlink = dec.GetInt()
	copy(ip.Direct[:], dec.GetInts(common.NDIRECT))
	ip.Indirect1 = dec.GetInt()
	ip.Indirect2 = dec.GetInt()
	return ip
}

// Load reads the inode record at a.
func Load(op *buftxn.BufTxn, a addr.Addr) (*DiskInode, error) {
	b, err := op.ReadBuf(a, common.INODESZ*8)
	if err != nil {
		return nil, err
	}
	return Decode(b.Data), nil
}

// Store writes ip back to its record at a.
func (ip *DiskInode) Store(op *buftxn.BufTxn, a addr.Addr) {
	op.OverWrite(a, common.INODESZ*8, ip.Encode())
}

// DataBlocks is the number of data blocks a file of size bytes occupies.
func DataBlocks(size uint64) uint64 {
	return util.RoundUp(size, disk.BlockSize)
}

// TotalBlocks counts the data and indirect blocks of a file of size bytes.
func TotalBlocks(size uint64) uint64 {
	data := DataBlocks(size)
	total := data
	if data > common.NDIRECT {
		total += 1
	}
	if data > common.NDIRECT+common.NINDIRECT {
		total += 1
		total += util.RoundUp(data-common.NDIRECT-common.NINDIRECT, common.NINDIRECT)
	}
	return total
}

// MaxSize is the largest file the pointer tree can describe.
func MaxSize() uint64 {
	return common.MAXBLOCKS * disk.BlockSize
}

// BlocksNeeded is how many fresh blocks IncreaseSize(newSize) consumes.
func (ip *DiskInode) BlocksNeeded(newSize uint64) uint64 {
	if newSize <= ip.Size {
		return 0
	}
	return TotalBlocks(newSize) - TotalBlocks(ip.Size)
}

// BlockID returns the data block holding the inner-th block of the file.
func (ip *DiskInode) BlockID(op *buftxn.BufTxn, inner uint64) (common.Bnum, error) {
	if inner < common.NDIRECT {
		return ip.Direct[inner], nil
	}
	inner -= common.NDIRECT
	if inner < common.NINDIRECT {
		ind1, err := op.ReadBlock(ip.Indirect1)
		if err != nil {
			return 0, err
		}
		return ind1.BnumGet(inner * 8), nil
	}
	last := inner - common.NINDIRECT
	if last >= common.NINDIRECT*common.NINDIRECT {
		return 0, fmt.Errorf("%w: block %d beyond max file size",
			common.ErrInvalidArgument, inner+common.NDIRECT)
	}
	ind2, err := op.ReadBlock(ip.Indirect2)
	if err != nil {
		return 0, err
	}
	ind1, err := op.ReadBlock(ind2.BnumGet(last / common.NINDIRECT * 8))
	if err != nil {
		return 0, err
	}
	return ind1.BnumGet(last % common.NINDIRECT * 8), nil
}

// IncreaseSize grows the file to newSize, hanging the fresh blocks in blocks
// off the pointer tree: direct slots first, then the single-indirect block,
// then the double-indirect tree. Indirect blocks are taken from blocks as the
// tree needs them. Every consumed block is zeroed. len(blocks) must be
// BlocksNeeded(newSize).
func (ip *DiskInode) IncreaseSize(op *buftxn.BufTxn, newSize uint64, blocks []common.Bnum) error {
	if newSize < ip.Size {
		return fmt.Errorf("%w: shrink from %d to %d", common.ErrInvalidArgument, ip.Size, newSize)
	}
	if newSize > MaxSize() {
		return fmt.Errorf("%w: size %d exceeds max %d", common.ErrOutOfSpace, newSize, MaxSize())
	}
	if uint64(len(blocks)) != ip.BlocksNeeded(newSize) {
		return fmt.Errorf("%w: got %d blocks, need %d", common.ErrInconsistent,
			len(blocks), ip.BlocksNeeded(newSize))
	}
	util.DPrintf(5, "IncreaseSize: %d -> %d with %d blocks\n", ip.Size, newSize, len(blocks))

	next := func() common.Bnum {
		bn := blocks[0]
		blocks = blocks[1:]
		op.ZeroBlock(bn)
		return bn
	}

	current := DataBlocks(ip.Size)
	total := DataBlocks(newSize)
	ip.Size = newSize

	for current < util.Min(total, common.NDIRECT) {
		ip.Direct[current] = next()
		current++
	}
	if total <= common.NDIRECT {
		return nil
	}

	if current == common.NDIRECT {
		ip.Indirect1 = next()
	}
	current -= common.NDIRECT
	total -= common.NDIRECT
	ind1, err := op.ReadBlock(ip.Indirect1)
	if err != nil {
		return err
	}
	for current < util.Min(total, common.NINDIRECT) {
		ind1.BnumPut(current*8, next())
		current++
	}
	if total <= common.NINDIRECT {
		return nil
	}

	if current == common.NINDIRECT {
		ip.Indirect2 = next()
	}
	current -= common.NINDIRECT
	total -= common.NINDIRECT
	ind2, err := op.ReadBlock(ip.Indirect2)
	if err != nil {
		return err
	}
	a0, b0 := current/common.NINDIRECT, current%common.NINDIRECT
	a1, b1 := total/common.NINDIRECT, total%common.NINDIRECT
	for a0 < a1 || (a0 == a1 && b0 < b1) {
		if b0 == 0 {
			ind2.BnumPut(a0*8, next())
		}
		l1, err := op.ReadBlock(ind2.BnumGet(a0 * 8))
		if err != nil {
			return err
		}
		l1.BnumPut(b0*8, next())
		b0++
		if b0 == common.NINDIRECT {
			b0 = 0
			a0++
		}
	}
	return nil
}

// ClearSize truncates the file to zero bytes and returns every block the
// pointer tree held: data blocks first, then single-indirect blocks, then the
// double-indirect block. The caller frees them.
func (ip *DiskInode) ClearSize(op *buftxn.BufTxn) ([]common.Bnum, error) {
	data := make([]common.Bnum, 0, TotalBlocks(ip.Size))
	var indirect []common.Bnum
	var indirect2 []common.Bnum

	util.DPrintf(5, "ClearSize: %d bytes\n", ip.Size)
	remaining := DataBlocks(ip.Size)
	ip.Size = 0

	n := util.Min(remaining, common.NDIRECT)
	for i := uint64(0); i < n; i++ {
		data = append(data, ip.Direct[i])
		ip.Direct[i] = common.NULLBNUM
	}
	remaining -= n
	if remaining == 0 {
		return data, nil
	}

	ind1, err := op.ReadBlock(ip.Indirect1)
	if err != nil {
		return nil, err
	}
	n = util.Min(remaining, common.NINDIRECT)
	for i := uint64(0); i < n; i++ {
		data = append(data, ind1.BnumGet(i*8))
	}
	indirect = append(indirect, ip.Indirect1)
	ip.Indirect1 = common.NULLBNUM
	remaining -= n

	if remaining > 0 {
		ind2, err := op.ReadBlock(ip.Indirect2)
		if err != nil {
			return nil, err
		}
		for i := uint64(0); remaining > 0; i++ {
			l1bn := ind2.BnumGet(i * 8)
			l1, err := op.ReadBlock(l1bn)
			if err != nil {
				return nil, err
			}
			n = util.Min(remaining, common.NINDIRECT)
			for j := uint64(0); j < n; j++ {
				data = append(data, l1.BnumGet(j*8))
			}
			indirect = append(indirect, l1bn)
			remaining -= n
		}
		indirect2 = append(indirect2, ip.Indirect2)
		ip.Indirect2 = common.NULLBNUM
	}

	data = append(data, indirect...)
	return append(data, indirect2...), nil
}

// Blocks lists every block the pointer tree holds, in ClearSize order,
// without changing ip.
func (ip *DiskInode) Blocks(op *buftxn.BufTxn) ([]common.Bnum, error) {
	cp := *ip
	return cp.ClearSize(op)
}

// NullTail reports whether every pointer past the file's data is null.
func (ip *DiskInode) NullTail() bool {
	data := DataBlocks(ip.Size)
	for i := data; i < common.NDIRECT; i++ {
		if ip.Direct[i] != common.NULLBNUM {
			return false
		}
	}
	if data <= common.NDIRECT && ip.Indirect1 != common.NULLBNUM {
		return false
	}
	if data <= common.NDIRECT+common.NINDIRECT && ip.Indirect2 != common.NULLBNUM {
		return false
	}
	return true
}

// ReadAt copies file bytes starting at off into p, stopping at end of file.
func (ip *DiskInode) ReadAt(op *buftxn.BufTxn, off uint64, p []byte) (uint64, error) {
	return ip.transfer(op, off, p, false)
}

// WriteAt copies p into the file starting at off. The write must lie within
// the current size; callers grow the file first.
func (ip *DiskInode) WriteAt(op *buftxn.BufTxn, off uint64, p []byte) (uint64, error) {
	if util.SumOverflows(off, uint64(len(p))) || off+uint64(len(p)) > ip.Size {
		return 0, fmt.Errorf("%w: write [%d, +%d) past size %d",
			common.ErrInvalidArgument, off, len(p), ip.Size)
	}
	return ip.transfer(op, off, p, true)
}

func (ip *DiskInode) transfer(op *buftxn.BufTxn, off uint64, p []byte, write bool) (uint64, error) {
	start := off
	end := ip.Size
	if !util.SumOverflows(off, uint64(len(p))) {
		end = util.Min(off+uint64(len(p)), ip.Size)
	}
	if start >= end {
		return 0, nil
	}
	var done uint64
	for start < end {
		blkEnd := util.Min((start/disk.BlockSize+1)*disk.BlockSize, end)
		n := blkEnd - start
		bn, err := ip.BlockID(op, start/disk.BlockSize)
		if err != nil {
			return done, err
		}
		b, err := op.ReadBlock(bn)
		if err != nil {
			return done, err
		}
		boff := start % disk.BlockSize
		if write {
			copy(b.Data[boff:boff+n], p[done:done+n])
			b.SetDirty()
		} else {
			copy(p[done:done+n], b.Data[boff:boff+n])
		}
		done += n
		start = blkEnd
	}
	return done, nil
}
