package disk

import (
	"sync"
)

var _ Disk = (*memDisk)(nil)

type memDisk struct {
	l      *sync.RWMutex
	blocks [][BlockSize]byte
}

// NewMemDisk returns a zeroed in-memory disk of numBlocks blocks.
func NewMemDisk(numBlocks uint64) Disk {
	blocks := make([][BlockSize]byte, numBlocks)
	return &memDisk{l: new(sync.RWMutex), blocks: blocks}
}

func (d *memDisk) ReadTo(a uint64, buf Block) error {
	d.l.RLock()
	defer d.l.RUnlock()
	if err := checkAccess(a, uint64(len(d.blocks)), buf); err != nil {
		return err
	}
	copy(buf, d.blocks[a][:])
	return nil
}

func (d *memDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	if err := d.ReadTo(a, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *memDisk) Write(a uint64, v Block) error {
	d.l.Lock()
	defer d.l.Unlock()
	if err := checkAccess(a, uint64(len(d.blocks)), v); err != nil {
		return err
	}
	copy(d.blocks[a][:], v)
	return nil
}

func (d *memDisk) Size() (uint64, error) {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.blocks)), nil
}

func (d *memDisk) Barrier() error { return nil }

func (d *memDisk) Close() error { return nil }
