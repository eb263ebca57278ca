package disk

import (
	"github.com/tchajed/goose/machine/disk"
)

type gooseDisk struct {
	d disk.Disk
}

// FromGoose adapts a goose disk, which panics on misuse, to a Disk that
// reports errors instead.
func FromGoose(d disk.Disk) Disk {
	return &gooseDisk{d: d}
}

func (g *gooseDisk) ReadTo(a uint64, buf Block) error {
	if err := checkAccess(a, g.d.Size(), buf); err != nil {
		return err
	}
	copy(buf, g.d.Read(a))
	return nil
}

func (g *gooseDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	if err := g.ReadTo(a, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (g *gooseDisk) Write(a uint64, v Block) error {
	if err := checkAccess(a, g.d.Size(), v); err != nil {
		return err
	}
	g.d.Write(a, v)
	return nil
}

func (g *gooseDisk) Size() (uint64, error) {
	return g.d.Size(), nil
}

func (g *gooseDisk) Barrier() error {
	g.d.Barrier()
	return nil
}

func (g *gooseDisk) Close() error {
	g.d.Close()
	return nil
}
