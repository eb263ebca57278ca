package buftxn_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-easyfs/addr"
	"github.com/mit-pdos/go-easyfs/bcache"
	"github.com/mit-pdos/go-easyfs/buftxn"
	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/disk"
)

func data(sz int) []byte {
	d := make([]byte, sz)
	rand.Read(d)
	return d
}

const inodeSz uint64 = 8 * common.INODESZ

func inodeAddr(i uint64) addr.Addr {
	return addr.MkAddr(10+i/common.INODEBLK, (i%common.INODEBLK)*inodeSz)
}

func mkCache() *bcache.Bcache {
	return bcache.MkBcache(disk.NewMemDisk(100), 8)
}

func TestWriteRead(t *testing.T) {
	cache := mkCache()

	op := buftxn.Begin(cache)
	bs0 := data(int(common.INODESZ))
	bs1 := data(int(common.INODESZ))
	op.OverWrite(inodeAddr(0), inodeSz, bs0)
	op.OverWrite(inodeAddr(1), inodeSz, bs1)
	assert.Equal(t, uint64(2), op.NDirty())
	require.NoError(t, op.Commit())

	op = buftxn.Begin(cache)
	b, err := op.ReadBuf(inodeAddr(0), inodeSz)
	require.NoError(t, err)
	assert.Equal(t, bs0, b.Data)
	b, err = op.ReadBuf(inodeAddr(1), inodeSz)
	require.NoError(t, err)
	assert.Equal(t, bs1, b.Data)
}

func TestReadOwnWrites(t *testing.T) {
	cache := mkCache()
	op := buftxn.Begin(cache)
	b, err := op.ReadBlock(20)
	require.NoError(t, err)
	b.BnumPut(0, 77)

	b2, err := op.ReadBlock(20)
	require.NoError(t, err)
	assert.Equal(t, common.Bnum(77), b2.BnumGet(0))
}

func TestAbandonedOpHasNoEffect(t *testing.T) {
	cache := mkCache()
	op := buftxn.Begin(cache)
	b, err := op.ReadBlock(20)
	require.NoError(t, err)
	b.BnumPut(0, 77)
	op.ZeroBlock(21)
	// never committed

	blk, err := cache.Read(20)
	require.NoError(t, err)
	assert.Equal(t, make(disk.Block, disk.BlockSize), blk)
}

func TestOverWriteSizeMismatch(t *testing.T) {
	op := buftxn.Begin(mkCache())
	op.OverWrite(inodeAddr(0), inodeSz, data(int(common.INODESZ)))
	assert.Panics(t, func() {
		op.OverWrite(inodeAddr(0), 8, data(1))
	})
}

func TestCommitLargerThanCache(t *testing.T) {
	cache := mkCache()
	op := buftxn.Begin(cache)
	for bn := common.Bnum(30); bn < 50; bn++ {
		b, err := op.ReadBlock(bn)
		require.NoError(t, err)
		b.BnumPut(0, bn)
	}
	require.NoError(t, op.Commit())
	require.NoError(t, cache.Flush())

	op = buftxn.Begin(cache)
	for bn := common.Bnum(30); bn < 50; bn++ {
		b, err := op.ReadBlock(bn)
		require.NoError(t, err)
		assert.Equal(t, bn, b.BnumGet(0), "block %d written back on eviction", bn)
	}
}
