// Package fsck checks the cross-structure invariants of a filesystem: the
// bitmaps against the inode records and the pointer trees, and link counts
// against directory entries.
package fsck

import (
	"fmt"

	"github.com/mit-pdos/go-easyfs/buftxn"
	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/dir"
	"github.com/mit-pdos/go-easyfs/efs"
	"github.com/mit-pdos/go-easyfs/inode"
	"github.com/mit-pdos/go-easyfs/util"
)

type Report struct {
	Problems []string `yaml:"problems"`
	Files    uint64   `yaml:"files"`
	Dirs     uint64   `yaml:"dirs"`
	Blocks   uint64   `yaml:"blocks"`
}

func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

func (r *Report) addf(format string, a ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, a...))
}

type checker struct {
	fs     *efs.EasyFileSystem
	op     *buftxn.BufTxn
	report *Report
	refs   map[common.Inum]uint64
	owner  map[common.Bnum]common.Inum
}

// Check walks the whole filesystem under its lock. Problems with the on-disk
// state go in the report; the error is for failures to read it.
func Check(fs *efs.EasyFileSystem) (*Report, error) {
	fs.Lock()
	defer fs.Unlock()
	c := &checker{
		fs:     fs,
		op:     fs.Begin(),
		report: &Report{},
		refs:   make(map[common.Inum]uint64),
		owner:  make(map[common.Bnum]common.Inum),
	}
	if err := c.checkTree(); err != nil {
		return nil, err
	}
	if err := c.checkInodes(); err != nil {
		return nil, err
	}
	if err := c.checkDataBitmap(); err != nil {
		return nil, err
	}
	util.DPrintf(1, "fsck: %d problems\n", len(c.report.Problems))
	return c.report, nil
}

// checkTree counts the live entries naming each inode, walking directories
// from the root.
func (c *checker) checkTree() error {
	root, err := c.fs.LoadInode(c.op, c.fs.Root())
	if err != nil {
		return err
	}
	if !root.IsDir() {
		c.report.addf("root inode %d is %v, not a directory", c.fs.Root(), root.Kind)
		return nil
	}
	visited := map[common.Inum]bool{c.fs.Root(): true}
	queue := []common.Inum{c.fs.Root()}
	for len(queue) > 0 {
		dnum := queue[0]
		queue = queue[1:]
		dip, err := c.fs.LoadInode(c.op, dnum)
		if err != nil {
			return err
		}
		if dip.Size%common.DIRENTSZ != 0 {
			c.report.addf("directory %d size %d is not a whole number of entries", dnum, dip.Size)
			continue
		}
		ents, err := dir.List(c.op, dip)
		if err != nil {
			return err
		}
		names := make(map[string]bool)
		for _, de := range ents {
			if names[de.Name] {
				c.report.addf("directory %d has name %q twice", dnum, de.Name)
			}
			names[de.Name] = true
			if de.Inum >= c.fs.Super().NInode() {
				c.report.addf("entry %q in %d names out-of-range inode %d", de.Name, dnum, de.Inum)
				continue
			}
			c.refs[de.Inum]++
			used, err := c.fs.InodeUsed(c.op, de.Inum)
			if err != nil {
				return err
			}
			if !used {
				c.report.addf("entry %q in %d names free inode %d", de.Name, dnum, de.Inum)
				continue
			}
			ip, err := c.fs.LoadInode(c.op, de.Inum)
			if err != nil {
				return err
			}
			if ip.IsDir() && !visited[de.Inum] {
				visited[de.Inum] = true
				queue = append(queue, de.Inum)
			}
		}
	}
	return nil
}

func (c *checker) checkInodes() error {
	for inum := common.Inum(0); inum < c.fs.Super().NInode(); inum++ {
		used, err := c.fs.InodeUsed(c.op, inum)
		if err != nil {
			return err
		}
		ip, err := c.fs.LoadInode(c.op, inum)
		if err != nil {
			return err
		}
		if !used {
			if *ip != (inode.DiskInode{}) {
				c.report.addf("free inode %d has a non-zero record (kind %v, nlink %d, size %d)",
					inum, ip.Kind, ip.Nlink, ip.Size)
			}
			continue
		}
		if err := c.checkInode(inum, ip); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) checkInode(inum common.Inum, ip *inode.DiskInode) error {
	switch ip.Kind {
	case common.KindFile:
		c.report.Files++
	case common.KindDir:
		c.report.Dirs++
	default:
		c.report.addf("allocated inode %d has kind %v", inum, ip.Kind)
		return nil
	}
	if inum == c.fs.Root() {
		if c.refs[inum] != 0 {
			c.report.addf("root is named by %d entries", c.refs[inum])
		}
	} else if ip.Nlink != c.refs[inum] {
		c.report.addf("inode %d has nlink %d but %d entries", inum, ip.Nlink, c.refs[inum])
	}
	if ip.Size > inode.MaxSize() {
		c.report.addf("inode %d size %d exceeds max file size", inum, ip.Size)
		return nil
	}
	if !ip.NullTail() {
		c.report.addf("inode %d has pointers past size %d", inum, ip.Size)
	}
	return c.checkBlocks(inum, ip)
}

func (c *checker) checkBlocks(inum common.Inum, ip *inode.DiskInode) error {
	data := inode.DataBlocks(ip.Size)
	if data > common.NDIRECT && !c.fs.Super().IsData(ip.Indirect1) {
		c.report.addf("inode %d indirect block %d is outside the data area", inum, ip.Indirect1)
		return nil
	}
	if data > common.NDIRECT+common.NINDIRECT && !c.fs.Super().IsData(ip.Indirect2) {
		c.report.addf("inode %d double-indirect block %d is outside the data area", inum, ip.Indirect2)
		return nil
	}
	for i := uint64(0); i < data; i++ {
		bn, err := ip.BlockID(c.op, i)
		if err != nil {
			return err
		}
		if !c.fs.Super().IsData(bn) {
			c.report.addf("inode %d block %d is %d, outside the data area", inum, i, bn)
			// the indirect tree cannot be trusted either
			return nil
		}
	}
	bns, err := ip.Blocks(c.op)
	if err != nil {
		return err
	}
	for _, bn := range bns {
		if !c.fs.Super().IsData(bn) {
			c.report.addf("inode %d holds block %d outside the data area", inum, bn)
			continue
		}
		if other, ok := c.owner[bn]; ok {
			c.report.addf("block %d held by inodes %d and %d", bn, other, inum)
			continue
		}
		c.owner[bn] = inum
		c.report.Blocks++
		used, err := c.fs.DataUsed(c.op, bn)
		if err != nil {
			return err
		}
		if !used {
			c.report.addf("block %d of inode %d is free in the bitmap", bn, inum)
		}
	}
	return nil
}

func (c *checker) checkDataBitmap() error {
	sup := c.fs.Super()
	for bn := sup.DataStart(); bn < sup.DataStart()+sup.NDataBlk; bn++ {
		used, err := c.fs.DataUsed(c.op, bn)
		if err != nil {
			return err
		}
		if _, ok := c.owner[bn]; used && !ok {
			c.report.addf("block %d is allocated but unreachable", bn)
		}
	}
	return nil
}
