package super

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-easyfs/common"
)

func TestLayout(t *testing.T) {
	assert := assert.New(t)
	fs, err := Layout(1000, 100)
	require.NoError(t, err)
	assert.Equal(uint64(1), fs.NInodeBitmap)
	assert.Equal(uint64(4), fs.NInodeBlk, "100 inodes round up to 4 blocks")
	assert.Equal(common.Inum(128), fs.NInode())
	assert.Equal(uint64(1), fs.NDataBitmap)
	assert.Equal(uint64(1000-1-1-4-1), fs.NDataBlk)

	assert.Equal(common.Bnum(1), fs.InodeBitmapStart())
	assert.Equal(common.Bnum(2), fs.InodeStart())
	assert.Equal(common.Bnum(6), fs.DataBitmapStart())
	assert.Equal(common.Bnum(7), fs.DataStart())
	assert.Equal(common.Bnum(1000), fs.MaxBnum())
	assert.True(fs.IsData(7))
	assert.True(fs.IsData(999))
	assert.False(fs.IsData(6))
}

func TestLayoutLargeDataArea(t *testing.T) {
	total := 3*common.NBITBLOCK + 100
	fs, err := Layout(total, 32)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), fs.NDataBitmap)
	assert.LessOrEqual(t, fs.NDataBlk, fs.NDataBitmap*common.NBITBLOCK)
}

func TestLayoutTooSmall(t *testing.T) {
	_, err := Layout(3, 32)
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
	_, err = Layout(100, 0)
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
}

func TestInum2Addr(t *testing.T) {
	fs, err := Layout(1000, 100)
	require.NoError(t, err)
	a := fs.Inum2Addr(33)
	assert.Equal(t, fs.InodeStart()+1, a.Blkno)
	assert.Equal(t, common.INODESZ*8, a.Off)
}

func TestEncodeDecode(t *testing.T) {
	wanted, err := Layout(1000, 100)
	require.NoError(t, err)
	found, err := Decode(wanted.Encode())
	require.NoError(t, err)
	if diff := cmp.Diff(wanted, found); diff != "" {
		t.Fatalf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	fs, err := Layout(1000, 100)
	require.NoError(t, err)
	blk := fs.Encode()
	blk[0] ^= 0xff
	_, err = Decode(blk)
	assert.True(t, errors.Is(err, common.ErrInconsistent), "bad magic")

	fs.NDataBlk++
	_, err = Decode(fs.Encode())
	assert.True(t, errors.Is(err, common.ErrInconsistent), "bad extents")
}
