// Package dir stores a directory as an array of fixed-size entries in the
// data of a directory inode.
//
// An entry is a NUL-padded name of NAMELEN bytes followed by the 8-byte inode
// number. An entry whose name is all zero is a tombstone: removal leaves one
// behind and insertion reuses the first one before growing the directory.
package dir

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-easyfs/buftxn"
	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/inode"
	"github.com/mit-pdos/go-easyfs/util"
)

type DirEnt struct {
	Name string
	Inum common.Inum
}

// AllocFn returns n fresh zeroed-on-use block numbers for directory growth.
type AllocFn func(n uint64) ([]common.Bnum, error)

// ValidName reports whether name can be stored in an entry.
func ValidName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("%w: empty name", common.ErrInvalidArgument)
	}
	if uint64(len(name)) > common.MAXNAME {
		return fmt.Errorf("%w: name %q longer than %d bytes",
			common.ErrInvalidArgument, name, common.MAXNAME)
	}
	if strings.ContainsAny(name, "\x00/") {
		return fmt.Errorf("%w: name %q contains NUL or '/'", common.ErrInvalidArgument, name)
	}
	return nil
}

func encodeEnt(name string, inum common.Inum) []byte {
	data := make([]byte, common.DIRENTSZ)
	copy(data, name)
	enc := marshal.NewEnc(8)
	enc.PutInt(uint64(inum))
	copy(data[common.NAMELEN:], enc.Finish())
	return data
}

// decodeEnt returns the entry in data and whether it is live.
func decodeEnt(data []byte) (DirEnt, bool) {
	raw := data[:common.NAMELEN]
	n := bytes.IndexByte(raw, 0)
	if n < 0 {
		n = len(raw)
	}
	if n == 0 {
		return DirEnt{}, false
	}
	dec := marshal.NewDec(data[common.NAMELEN:common.DIRENTSZ])
	return DirEnt{Name: string(raw[:n]), Inum: common.Inum(dec.GetInt())}, true
}

// NumSlots is the number of entry slots, live or not, in directory dip.
func NumSlots(dip *inode.DiskInode) uint64 {
	return dip.Size / common.DIRENTSZ
}

func readSlot(op *buftxn.BufTxn, dip *inode.DiskInode, slot uint64) (DirEnt, bool, error) {
	data := make([]byte, common.DIRENTSZ)
	n, err := dip.ReadAt(op, slot*common.DIRENTSZ, data)
	if err != nil {
		return DirEnt{}, false, err
	}
	if n != common.DIRENTSZ {
		return DirEnt{}, false, fmt.Errorf("%w: short directory entry %d", common.ErrInconsistent, slot)
	}
	de, live := decodeEnt(data)
	return de, live, nil
}

func writeSlot(op *buftxn.BufTxn, dip *inode.DiskInode, slot uint64, data []byte) error {
	_, err := dip.WriteAt(op, slot*common.DIRENTSZ, data)
	return err
}

// scan calls f on every slot until f returns true, and returns that slot.
func scan(op *buftxn.BufTxn, dip *inode.DiskInode,
	f func(slot uint64, de DirEnt, live bool) bool) (uint64, bool, error) {
	if !dip.IsDir() {
		return 0, false, fmt.Errorf("%w: not a directory", common.ErrInvalidArgument)
	}
	for slot := uint64(0); slot < NumSlots(dip); slot++ {
		de, live, err := readSlot(op, dip, slot)
		if err != nil {
			return 0, false, err
		}
		if f(slot, de, live) {
			return slot, true, nil
		}
	}
	return 0, false, nil
}

// Find looks up name and returns its inode number and slot.
func Find(op *buftxn.BufTxn, dip *inode.DiskInode, name string) (common.Inum, uint64, error) {
	var inum common.Inum
	slot, ok, err := scan(op, dip, func(_ uint64, de DirEnt, live bool) bool {
		if live && de.Name == name {
			inum = de.Inum
			return true
		}
		return false
	})
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", common.ErrNotFound, name)
	}
	return inum, slot, nil
}

// Insert adds name -> inum. The directory inode may grow, so the caller must
// store dip afterwards.
func Insert(op *buftxn.BufTxn, dip *inode.DiskInode, name string, inum common.Inum, alloc AllocFn) error {
	if err := ValidName(name); err != nil {
		return err
	}
	var exists, haveFree bool
	var free uint64
	_, _, err := scan(op, dip, func(slot uint64, de DirEnt, live bool) bool {
		if !live {
			if !haveFree {
				free, haveFree = slot, true
			}
			return false
		}
		if de.Name == name {
			exists = true
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %q", common.ErrNameExists, name)
	}
	if !haveFree {
		free = NumSlots(dip)
		newSize := dip.Size + common.DIRENTSZ
		blocks, err := alloc(dip.BlocksNeeded(newSize))
		if err != nil {
			return err
		}
		if err := dip.IncreaseSize(op, newSize, blocks); err != nil {
			return err
		}
	}
	util.DPrintf(5, "dir.Insert: %q -> %d at slot %d\n", name, inum, free)
	return writeSlot(op, dip, free, encodeEnt(name, inum))
}

// Remove turns the entry for name into a tombstone and returns the inode
// number it named.
func Remove(op *buftxn.BufTxn, dip *inode.DiskInode, name string) (common.Inum, error) {
	inum, slot, err := Find(op, dip, name)
	if err != nil {
		return 0, err
	}
	util.DPrintf(5, "dir.Remove: %q (inode %d) at slot %d\n", name, inum, slot)
	if err := writeSlot(op, dip, slot, make([]byte, common.DIRENTSZ)); err != nil {
		return 0, err
	}
	return inum, nil
}

// List returns the live entries in slot order.
func List(op *buftxn.BufTxn, dip *inode.DiskInode) ([]DirEnt, error) {
	var ents []DirEnt
	_, _, err := scan(op, dip, func(_ uint64, de DirEnt, live bool) bool {
		if live {
			ents = append(ents, de)
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	return ents, nil
}

func IsEmpty(op *buftxn.BufTxn, dip *inode.DiskInode) (bool, error) {
	_, found, err := scan(op, dip, func(_ uint64, _ DirEnt, live bool) bool {
		return live
	})
	if err != nil {
		return false, err
	}
	return !found, nil
}
