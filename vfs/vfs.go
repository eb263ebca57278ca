// Package vfs is the operation surface a kernel's syscall handlers call: an
// Inode handle names one inode of a mounted filesystem, and every method runs
// as one operation under the filesystem lock. An operation that fails makes
// no change; one that succeeds is applied in full.
package vfs

import (
	"fmt"

	"github.com/mit-pdos/go-easyfs/buftxn"
	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/dir"
	"github.com/mit-pdos/go-easyfs/efs"
	"github.com/mit-pdos/go-easyfs/inode"
	"github.com/mit-pdos/go-easyfs/util"
)

type Inode struct {
	inum common.Inum
	fs   *efs.EasyFileSystem
}

// StatRecord is a snapshot of an inode's attributes.
type StatRecord struct {
	Ino   common.Inum `yaml:"ino"`
	Mode  common.Kind `yaml:"mode"`
	Nlink uint64      `yaml:"nlink"`
	Size  uint64      `yaml:"size"`
}

func Root(fs *efs.EasyFileSystem) *Inode {
	return &Inode{inum: fs.Root(), fs: fs}
}

// Get returns a handle for an allocated inode.
func Get(fs *efs.EasyFileSystem, inum common.Inum) (*Inode, error) {
	var ino *Inode
	err := atomically(fs, func(op *buftxn.BufTxn) error {
		if _, err := fs.Stat(op, inum); err != nil {
			return err
		}
		ino = &Inode{inum: inum, fs: fs}
		return nil
	})
	return ino, err
}

// atomically runs f as one operation: its writes are committed only if f
// succeeds.
func atomically(fs *efs.EasyFileSystem, f func(op *buftxn.BufTxn) error) error {
	fs.Lock()
	defer fs.Unlock()
	op := fs.Begin()
	if err := f(op); err != nil {
		util.DPrintf(3, "operation aborted: %v\n", err)
		return err
	}
	return op.Commit()
}

func (ino *Inode) InodeID() common.Inum {
	return ino.inum
}

func (ino *Inode) load(op *buftxn.BufTxn) (*inode.DiskInode, error) {
	return ino.fs.Stat(op, ino.inum)
}

func (ino *Inode) loadDir(op *buftxn.BufTxn) (*inode.DiskInode, error) {
	dip, err := ino.load(op)
	if err != nil {
		return nil, err
	}
	if !dip.IsDir() {
		return nil, fmt.Errorf("%w: inode %d is not a directory", common.ErrInvalidArgument, ino.inum)
	}
	return dip, nil
}

func (ino *Inode) allocData(op *buftxn.BufTxn) dir.AllocFn {
	return func(n uint64) ([]common.Bnum, error) {
		return ino.fs.AllocData(op, n)
	}
}

// Find looks up name in this directory.
func (ino *Inode) Find(name string) (*Inode, error) {
	var found *Inode
	err := atomically(ino.fs, func(op *buftxn.BufTxn) error {
		dip, err := ino.loadDir(op)
		if err != nil {
			return err
		}
		inum, _, err := dir.Find(op, dip, name)
		if err != nil {
			return err
		}
		found = &Inode{inum: inum, fs: ino.fs}
		return nil
	})
	return found, err
}

func (ino *Inode) create(name string, kind common.Kind) (*Inode, error) {
	var created *Inode
	err := atomically(ino.fs, func(op *buftxn.BufTxn) error {
		if err := dir.ValidName(name); err != nil {
			return err
		}
		dip, err := ino.loadDir(op)
		if err != nil {
			return err
		}
		inum, err := ino.fs.AllocInode(op, kind)
		if err != nil {
			return err
		}
		if err := dir.Insert(op, dip, name, inum, ino.allocData(op)); err != nil {
			return err
		}
		ino.fs.StoreInode(op, ino.inum, dip)
		util.DPrintf(1, "create %q in %d: inode %d (%v)\n", name, ino.inum, inum, kind)
		created = &Inode{inum: inum, fs: ino.fs}
		return nil
	})
	return created, err
}

// Create makes an empty file called name in this directory.
func (ino *Inode) Create(name string) (*Inode, error) {
	return ino.create(name, common.KindFile)
}

// Mkdir makes an empty directory called name in this directory.
func (ino *Inode) Mkdir(name string) (*Inode, error) {
	return ino.create(name, common.KindDir)
}

// Entries lists the names in this directory with the inodes they refer to.
func (ino *Inode) Entries() ([]dir.DirEnt, error) {
	var ents []dir.DirEnt
	err := atomically(ino.fs, func(op *buftxn.BufTxn) error {
		dip, err := ino.loadDir(op)
		if err != nil {
			return err
		}
		ents, err = dir.List(op, dip)
		return err
	})
	return ents, err
}

// Ls lists the names in this directory in slot order.
func (ino *Inode) Ls() ([]string, error) {
	ents, err := ino.Entries()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, de := range ents {
		names = append(names, de.Name)
	}
	return names, nil
}

// IsEmpty reports whether this directory has no live entries.
func (ino *Inode) IsEmpty() (bool, error) {
	var empty bool
	err := atomically(ino.fs, func(op *buftxn.BufTxn) error {
		dip, err := ino.loadDir(op)
		if err != nil {
			return err
		}
		empty, err = dir.IsEmpty(op, dip)
		return err
	})
	return empty, err
}

func (ino *Inode) ReadAt(off uint64, p []byte) (uint64, error) {
	var n uint64
	err := atomically(ino.fs, func(op *buftxn.BufTxn) error {
		ip, err := ino.load(op)
		if err != nil {
			return err
		}
		n, err = ip.ReadAt(op, off, p)
		return err
	})
	return n, err
}

// WriteAt writes p at off, growing the file first if the write ends past
// its size.
func (ino *Inode) WriteAt(off uint64, p []byte) (uint64, error) {
	var n uint64
	err := atomically(ino.fs, func(op *buftxn.BufTxn) error {
		ip, err := ino.load(op)
		if err != nil {
			return err
		}
		if ip.IsDir() {
			return fmt.Errorf("%w: write to directory %d", common.ErrInvalidArgument, ino.inum)
		}
		if util.SumOverflows(off, uint64(len(p))) {
			return fmt.Errorf("%w: write past end of address space", common.ErrInvalidArgument)
		}
		if end := off + uint64(len(p)); end > ip.Size {
			if end > inode.MaxSize() {
				return fmt.Errorf("%w: size %d exceeds max file size", common.ErrOutOfSpace, end)
			}
			blocks, err := ino.fs.AllocData(op, ip.BlocksNeeded(end))
			if err != nil {
				return err
			}
			if err := ip.IncreaseSize(op, end, blocks); err != nil {
				return err
			}
		}
		n, err = ip.WriteAt(op, off, p)
		if err != nil {
			return err
		}
		ino.fs.StoreInode(op, ino.inum, ip)
		return nil
	})
	return n, err
}

// Clear truncates a file to zero bytes and frees its blocks.
func (ino *Inode) Clear() error {
	return atomically(ino.fs, func(op *buftxn.BufTxn) error {
		ip, err := ino.load(op)
		if err != nil {
			return err
		}
		if ip.IsDir() {
			return fmt.Errorf("%w: clear of directory %d", common.ErrInvalidArgument, ino.inum)
		}
		blocks, err := ip.ClearSize(op)
		if err != nil {
			return err
		}
		if err := ino.fs.DeallocData(op, blocks); err != nil {
			return err
		}
		ino.fs.StoreInode(op, ino.inum, ip)
		util.DPrintf(3, "clear %d: freed %d blocks\n", ino.inum, len(blocks))
		return nil
	})
}

// Link adds newName to this directory, naming the inode oldName names.
func (ino *Inode) Link(oldName string, newName string) error {
	return atomically(ino.fs, func(op *buftxn.BufTxn) error {
		if oldName == newName {
			return fmt.Errorf("%w: link %q to itself", common.ErrInvalidArgument, oldName)
		}
		dip, err := ino.loadDir(op)
		if err != nil {
			return err
		}
		inum, _, err := dir.Find(op, dip, oldName)
		if err != nil {
			return err
		}
		ip, err := ino.fs.Stat(op, inum)
		if err != nil {
			return err
		}
		if err := dir.Insert(op, dip, newName, inum, ino.allocData(op)); err != nil {
			return err
		}
		ip.Nlink++
		ino.fs.StoreInode(op, inum, ip)
		ino.fs.StoreInode(op, ino.inum, dip)
		util.DPrintf(1, "link %q -> %q: inode %d nlink %d\n", newName, oldName, inum, ip.Nlink)
		return nil
	})
}

// Unlink removes name from this directory. When the last name of an inode
// goes, the inode and its blocks are freed. The caller checks that a
// directory losing its last name is empty.
func (ino *Inode) Unlink(name string) error {
	return atomically(ino.fs, func(op *buftxn.BufTxn) error {
		dip, err := ino.loadDir(op)
		if err != nil {
			return err
		}
		inum, err := dir.Remove(op, dip, name)
		if err != nil {
			return err
		}
		ip, err := ino.fs.Stat(op, inum)
		if err != nil {
			return err
		}
		if ip.Nlink == 0 {
			return fmt.Errorf("%w: inode %d named %q has no links",
				common.ErrInconsistent, inum, name)
		}
		ip.Nlink--
		util.DPrintf(1, "unlink %q: inode %d nlink %d\n", name, inum, ip.Nlink)
		if ip.Nlink > 0 {
			ino.fs.StoreInode(op, inum, ip)
			return nil
		}
		return ino.fs.DeallocInode(op, inum)
	})
}

func mkStat(inum common.Inum, ip *inode.DiskInode) *StatRecord {
	return &StatRecord{
		Ino:   inum,
		Mode:  ip.Kind,
		Nlink: ip.Nlink,
		Size:  ip.Size,
	}
}

// Stat describes the inode inum, which the caller resolved from a file
// descriptor.
func Stat(fs *efs.EasyFileSystem, inum common.Inum) (*StatRecord, error) {
	var st *StatRecord
	err := atomically(fs, func(op *buftxn.BufTxn) error {
		ip, err := fs.Stat(op, inum)
		if err != nil {
			return err
		}
		st = mkStat(inum, ip)
		return nil
	})
	return st, err
}

func (ino *Inode) Stat() (*StatRecord, error) {
	return Stat(ino.fs, ino.inum)
}

func (ino *Inode) Nlink() (uint64, error) {
	st, err := ino.Stat()
	if err != nil {
		return 0, err
	}
	return st.Nlink, nil
}

func (ino *Inode) Size() (uint64, error) {
	st, err := ino.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size, nil
}

func (ino *Inode) IsDir() (bool, error) {
	st, err := ino.Stat()
	if err != nil {
		return false, err
	}
	return st.Mode == common.KindDir, nil
}
