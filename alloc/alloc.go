package alloc

import (
	"fmt"

	"github.com/mit-pdos/go-easyfs/buftxn"
	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/util"
)

// Alloc uses an on-disk bit map to allocate and free numbers in [0, max).
// Bit n lives in bitmap block start + n/NBITBLOCK; a set bit means in use.
//
// Bitmap blocks are always accessed as whole blocks through the caller's
// operation, so an allocation that is never committed leaves no trace.
type Alloc struct {
	start common.Bnum
	len   uint64 // bitmap blocks
	max   uint64
}

func MkAlloc(start common.Bnum, len uint64, max uint64) *Alloc {
	if max > len*common.NBITBLOCK {
		panic("MkAlloc: bitmap too small")
	}
	a := &Alloc{
		start: start,
		len:   len,
		max:   max,
	}
	return a
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

func (a *Alloc) checkNum(n uint64) error {
	if n >= a.max {
		return fmt.Errorf("%w: bit %d out of range %d", common.ErrInconsistent, n, a.max)
	}
	return nil
}

// AllocNum marks the lowest-numbered free unit as used and returns it.
func (a *Alloc) AllocNum(op *buftxn.BufTxn) (uint64, error) {
	for i := uint64(0); i < a.len; i++ {
		b, err := op.ReadBlock(a.start + i)
		if err != nil {
			return 0, err
		}
		for byt, v := range b.Data {
			if v == 0xff {
				continue
			}
			for bit := uint64(0); bit < 8; bit++ {
				if v&(1<<bit) != 0 {
					continue
				}
				num := i*common.NBITBLOCK + uint64(byt)*8 + bit
				if num >= a.max {
					return 0, common.ErrOutOfSpace
				}
				b.Data[byt] = v | (1 << bit)
				b.SetDirty()
				util.DPrintf(10, "AllocNum: %d (bitmap %d)\n", num, a.start)
				return num, nil
			}
		}
	}
	return 0, common.ErrOutOfSpace
}

// FreeNum clears the bit for num. Freeing a unit that is not in use means the
// filesystem's bookkeeping is corrupt, and is reported as ErrInconsistent.
func (a *Alloc) FreeNum(op *buftxn.BufTxn, num uint64) error {
	if err := a.checkNum(num); err != nil {
		return err
	}
	b, err := op.ReadBlock(a.start + num/common.NBITBLOCK)
	if err != nil {
		return err
	}
	off := num % common.NBITBLOCK
	byt, bit := off/8, off%8
	if b.Data[byt]&(1<<bit) == 0 {
		return fmt.Errorf("%w: double free of %d", common.ErrInconsistent, num)
	}
	b.Data[byt] = b.Data[byt] & ^(1 << bit)
	b.SetDirty()
	util.DPrintf(10, "FreeNum: %d (bitmap %d)\n", num, a.start)
	return nil
}

// MarkUsed sets the bit for num regardless of its current value.
func (a *Alloc) MarkUsed(op *buftxn.BufTxn, num uint64) error {
	if err := a.checkNum(num); err != nil {
		return err
	}
	b, err := op.ReadBlock(a.start + num/common.NBITBLOCK)
	if err != nil {
		return err
	}
	off := num % common.NBITBLOCK
	b.Data[off/8] |= 1 << (off % 8)
	b.SetDirty()
	return nil
}

func (a *Alloc) IsUsed(op *buftxn.BufTxn, num uint64) (bool, error) {
	if err := a.checkNum(num); err != nil {
		return false, err
	}
	b, err := op.ReadBlock(a.start + num/common.NBITBLOCK)
	if err != nil {
		return false, err
	}
	off := num % common.NBITBLOCK
	return b.Data[off/8]&(1<<(off%8)) != 0, nil
}

// NumFree counts the free units.
func (a *Alloc) NumFree(op *buftxn.BufTxn) (uint64, error) {
	var used uint64
	for i := uint64(0); i < a.len; i++ {
		b, err := op.ReadBlock(a.start + i)
		if err != nil {
			return 0, err
		}
		for _, v := range b.Data {
			used += popCnt(v)
		}
	}
	return a.max - used, nil
}
