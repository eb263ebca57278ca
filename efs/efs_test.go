package efs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/disk"
	"github.com/mit-pdos/go-easyfs/super"
)

func newTestFs(t *testing.T) (*EasyFileSystem, disk.Disk) {
	d := disk.NewMemDisk(1000)
	fs, err := Create(d, Params{Inodes: 64, CacheBlocks: 8})
	require.NoError(t, err)
	return fs, d
}

func TestCreateRoot(t *testing.T) {
	fs, _ := newTestFs(t)
	assert.Equal(t, common.ROOTINUM, fs.Root())
	assert.Equal(t, uint64(1000), fs.Super().TotalBlocks)

	op := fs.Begin()
	root, err := fs.Stat(op, fs.Root())
	require.NoError(t, err)
	assert.True(t, root.IsDir())
	assert.Equal(t, uint64(1), root.Nlink)
	assert.Equal(t, uint64(0), root.Size)

	inodes, blocks, err := fs.NumFree(op)
	require.NoError(t, err)
	assert.Equal(t, uint64(fs.Super().NInode())-1, inodes)
	assert.Equal(t, fs.Super().NDataBlk, blocks)
}

func TestCreateTooBig(t *testing.T) {
	_, err := Create(disk.NewMemDisk(10), Params{TotalBlocks: 20})
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
}

func TestOpenReadsSuper(t *testing.T) {
	fs, d := newTestFs(t)
	op := fs.Begin()
	inum, err := fs.AllocInode(op, common.KindFile)
	require.NoError(t, err)
	require.NoError(t, op.Commit())
	require.NoError(t, fs.Sync())

	fs2, err := Open(d, 4)
	require.NoError(t, err)
	assert.Equal(t, fs.Super(), fs2.Super())

	op = fs2.Begin()
	ip, err := fs2.Stat(op, inum)
	require.NoError(t, err)
	assert.Equal(t, common.KindFile, ip.Kind)
}

func TestOpenBadMagic(t *testing.T) {
	_, err := Open(disk.NewMemDisk(10), 4)
	assert.True(t, errors.Is(err, common.ErrInconsistent))
}

func TestOpenGooseDisk(t *testing.T) {
	d := disk.FromGoose(gdisk.NewMemDisk(200))
	_, err := Create(d, Params{})
	require.NoError(t, err)
	fs, err := Open(d, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), fs.Super().TotalBlocks)
	assert.Equal(t, common.Inum(64), fs.Super().NInode(), "50 inodes round up to whole blocks")
}

func TestAllocDeallocInode(t *testing.T) {
	fs, _ := newTestFs(t)
	op := fs.Begin()
	a, err := fs.AllocInode(op, common.KindFile)
	require.NoError(t, err)
	b, err := fs.AllocInode(op, common.KindDir)
	require.NoError(t, err)
	assert.Equal(t, common.Inum(1), a)
	assert.Equal(t, common.Inum(2), b)

	ip, err := fs.LoadInode(op, a)
	require.NoError(t, err)
	blocks, err := fs.AllocData(op, ip.BlocksNeeded(100))
	require.NoError(t, err)
	require.NoError(t, ip.IncreaseSize(op, 100, blocks))
	fs.StoreInode(op, a, ip)

	require.NoError(t, fs.DeallocInode(op, a))
	_, err = fs.Stat(op, a)
	assert.True(t, errors.Is(err, common.ErrNotFound))
	used, err := fs.DataUsed(op, blocks[0])
	require.NoError(t, err)
	assert.False(t, used, "data block returned to the bitmap")

	c, err := fs.AllocInode(op, common.KindFile)
	require.NoError(t, err)
	assert.Equal(t, a, c, "freed id is reused")
	ip, err = fs.LoadInode(op, c)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ip.Size)
}

func TestDeallocRoot(t *testing.T) {
	fs, _ := newTestFs(t)
	err := fs.DeallocInode(fs.Begin(), fs.Root())
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
}

func TestStatOutOfRange(t *testing.T) {
	fs, _ := newTestFs(t)
	_, err := fs.Stat(fs.Begin(), fs.Super().NInode())
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
}

func TestDataAllocAbsolute(t *testing.T) {
	fs, _ := newTestFs(t)
	op := fs.Begin()
	bns, err := fs.AllocData(op, 3)
	require.NoError(t, err)
	start := fs.Super().DataStart()
	assert.Equal(t, []common.Bnum{start, start + 1, start + 2}, bns)

	err = fs.DeallocData(op, []common.Bnum{super.SUPERBLK})
	assert.True(t, errors.Is(err, common.ErrInconsistent))
}

func TestOutOfInodes(t *testing.T) {
	fs, _ := newTestFs(t)
	op := fs.Begin()
	for i := uint64(1); i < uint64(fs.Super().NInode()); i++ {
		_, err := fs.AllocInode(op, common.KindFile)
		require.NoError(t, err)
	}
	_, err := fs.AllocInode(op, common.KindFile)
	assert.True(t, errors.Is(err, common.ErrOutOfSpace))
}

func TestUncommittedOpInvisible(t *testing.T) {
	fs, _ := newTestFs(t)
	op := fs.Begin()
	inum, err := fs.AllocInode(op, common.KindFile)
	require.NoError(t, err)

	_, err = fs.Stat(fs.Begin(), inum)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestCreateReservesRoot(t *testing.T) {
	fs, _ := newTestFs(t)
	op := fs.Begin()
	used, err := fs.InodeUsed(op, fs.Root())
	require.NoError(t, err)
	assert.True(t, used)
	inum, err := fs.AllocInode(op, common.KindFile)
	require.NoError(t, err)
	assert.Equal(t, common.Inum(1), inum, "root is never handed out")
}

func TestOpenTruncatedImage(t *testing.T) {
	_, d := newTestFs(t)
	blk, err := d.Read(super.SUPERBLK)
	require.NoError(t, err)
	small := disk.NewMemDisk(100)
	require.NoError(t, small.Write(super.SUPERBLK, blk))
	_, err = Open(small, 4)
	assert.True(t, errors.Is(err, common.ErrInconsistent))
}
