package buf

import (
	"sort"

	"github.com/mit-pdos/go-easyfs/addr"
)

//
// A map from Addr's to bufs.
//

type BufMap struct {
	bufs map[addr.Addr]*Buf
}

func MkBufMap() *BufMap {
	a := &BufMap{
		bufs: make(map[addr.Addr]*Buf),
	}
	return a
}

func (bmap *BufMap) Insert(buf *Buf) {
	bmap.bufs[buf.Addr] = buf
}

func (bmap *BufMap) Lookup(addr addr.Addr) *Buf {
	return bmap.bufs[addr]
}

func (bmap *BufMap) Ndirty() uint64 {
	n := uint64(0)
	for _, buf := range bmap.bufs {
		if buf.dirty {
			n += 1
		}
	}
	return n
}

// DirtyBufs returns the dirty bufs ordered by address, so that installing
// them touches blocks in a deterministic order.
func (bmap *BufMap) DirtyBufs() []*Buf {
	bufs := make([]*Buf, 0)
	for _, b := range bmap.bufs {
		if b.dirty {
			bufs = append(bufs, b)
		}
	}
	sort.Slice(bufs, func(i, j int) bool {
		return bufs[i].Addr.Flatid() < bufs[j].Addr.Flatid()
	})
	return bufs
}
