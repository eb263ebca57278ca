// Package disk defines the block device the filesystem is laid out on.
//
// Devices are addressed by block number and transfer exactly BlockSize bytes
// at a time. A device is atomic at block granularity only.
package disk

import (
	"errors"
	"fmt"

	"github.com/tchajed/goose/machine/disk"
)

// Block is a BlockSize-byte buffer
type Block = disk.Block

const BlockSize uint64 = disk.BlockSize

var (
	ErrOutOfBounds = errors.New("block address out of bounds")
	ErrBadSize     = errors.New("buffer is not block-sized")
)

// Disk provides access to a logical block-based disk
type Disk interface {
	// Read reads a disk block by address
	//
	// Expects a < Size().
	Read(a uint64) (Block, error)

	// ReadTo reads the disk block at a and stores the result in b
	//
	// Expects a < Size().
	ReadTo(a uint64, b Block) error

	// Write updates a disk block by address
	//
	// Expects a < Size().
	Write(a uint64, v Block) error

	// Size reports how big the disk is, in blocks
	Size() (uint64, error)

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}

func checkAccess(a uint64, n uint64, b Block) error {
	if uint64(len(b)) != BlockSize {
		return fmt.Errorf("%w (%d bytes)", ErrBadSize, len(b))
	}
	if a >= n {
		return fmt.Errorf("%w: %d >= %d", ErrOutOfBounds, a, n)
	}
	return nil
}
