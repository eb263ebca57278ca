package common

import (
	"github.com/tchajed/goose/machine/disk"
)

const (
	NBITBLOCK uint64 = disk.BlockSize * 8
	INODEBLK  uint64 = disk.BlockSize / INODESZ

	INODESZ uint64 = 128 // on-disk size

	// block pointers are 8 bytes on disk
	NDIRECT   uint64 = 11
	NINDIRECT uint64 = disk.BlockSize / 8
	MAXBLOCKS uint64 = NDIRECT + NINDIRECT + NINDIRECT*NINDIRECT

	DIRENTSZ  uint64 = 32
	NAMELEN   uint64 = 24
	MAXNAME   uint64 = NAMELEN - 1
	DIRENTBLK uint64 = disk.BlockSize / DIRENTSZ

	MAGIC uint64 = 0x3b800001
)

type Inum uint64
type Bnum = uint64

const (
	ROOTINUM Inum = 0
	NULLBNUM Bnum = 0
)

// Kind is the on-disk type tag of an inode.
type Kind uint64

const (
	KindFree Kind = iota
	KindFile
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindFree:
		return "free"
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	}
	return "unknown"
}

// MarshalYAML renders k by name.
func (k Kind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}
