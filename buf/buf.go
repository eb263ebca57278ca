// buf manages sub-block disk objects, to be packed into disk blocks
package buf

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-easyfs/addr"
	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/disk"
	"github.com/mit-pdos/go-easyfs/util"
)

// A Buf is a copy of a disk object (an inode, a bitmap bit, or a disk block)
type Buf struct {
	Addr  addr.Addr
	Sz    uint64 // number of bits
	Data  []byte
	dirty bool // has this object been written to?
}

func MkBuf(addr addr.Addr, sz uint64, data []byte) *Buf {
	if uint64(len(data))*8 != sz {
		panic("MkBuf: size mismatch")
	}
	b := &Buf{
		Addr:  addr,
		Sz:    sz,
		Data:  data,
		dirty: false,
	}
	return b
}

// Load the bits of a disk block into a new buf, as specified by addr. The buf
// gets its own copy of the bytes.
func MkBufLoad(addr addr.Addr, sz uint64, blk disk.Block) *Buf {
	bytefirst := addr.ByteOff()
	data := util.CloneByteSlice(blk[bytefirst : bytefirst+sz/8])
	b := &Buf{
		Addr:  addr,
		Sz:    sz,
		Data:  data,
		dirty: false,
	}
	return b
}

// Install bytes from src to dst.
func installBytes(src []byte, dst []byte, dstoff uint64, nbit uint64) {
	sz := nbit / 8
	copy(dst[dstoff:], src[:sz])
}

// Install the bytes of buf into blk. Only byte-aligned objects (inodes, whole
// blocks) are supported.
func (buf *Buf) Install(blk disk.Block) {
	util.DPrintf(20, "%v: install\n", buf.Addr)
	if buf.Sz%8 == 0 && buf.Addr.Off%8 == 0 {
		installBytes(buf.Data, blk, buf.Addr.ByteOff(), buf.Sz)
	} else {
		panic("Install unsupported\n")
	}
}

// IsBlock reports whether the buf covers a whole disk block.
func (buf *Buf) IsBlock() bool {
	return buf.Sz == common.NBITBLOCK
}

func (buf *Buf) IsDirty() bool {
	return buf.dirty
}

func (buf *Buf) SetDirty() {
	buf.dirty = true
}

// BnumGet reads the 8-byte block number stored at byte offset off.
func (buf *Buf) BnumGet(off uint64) common.Bnum {
	dec := marshal.NewDec(buf.Data[off : off+8])
	return common.Bnum(dec.GetInt())
}

// BnumPut stores v at byte offset off and marks the buf dirty.
func (buf *Buf) BnumPut(off uint64, v common.Bnum) {
	enc := marshal.NewEnc(8)
	enc.PutInt(uint64(v))
	copy(buf.Data[off:off+8], enc.Finish())
	buf.SetDirty()
}
