package addr

import (
	"github.com/mit-pdos/go-easyfs/common"
)

// Addr identifies the start of a disk object.
//
// Blkno is the block number containing the object, and Off is the location of
// the object within the block (expressed as a bit offset). The size of the
// object is determined by the context in which Addr is used.
type Addr struct {
	Blkno common.Bnum
	Off   uint64 // offset in bits
}

func (a Addr) Flatid() uint64 {
	return uint64(a.Blkno)*common.NBITBLOCK + a.Off
}

// ByteOff is the offset of a byte-aligned object within its block.
func (a Addr) ByteOff() uint64 {
	return a.Off / 8
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// MkBlockAddr addresses a whole block.
func MkBlockAddr(blkno common.Bnum) Addr {
	return Addr{Blkno: blkno, Off: 0}
}
