package dir

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-easyfs/bcache"
	"github.com/mit-pdos/go-easyfs/buftxn"
	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/disk"
	"github.com/mit-pdos/go-easyfs/inode"
)

type dirTest struct {
	op    *buftxn.BufTxn
	dip   *inode.DiskInode
	next  common.Bnum
	grown uint64
}

func mkDirTest() *dirTest {
	cache := bcache.MkBcache(disk.NewMemDisk(64), 16)
	return &dirTest{
		op:   buftxn.Begin(cache),
		dip:  inode.MkInode(common.KindDir),
		next: 10,
	}
}

func (d *dirTest) alloc(n uint64) ([]common.Bnum, error) {
	bns := make([]common.Bnum, n)
	for i := range bns {
		bns[i] = d.next
		d.next++
	}
	d.grown += n
	return bns, nil
}

func (d *dirTest) insert(name string, inum common.Inum) error {
	return Insert(d.op, d.dip, name, inum, d.alloc)
}

func TestValidName(t *testing.T) {
	assert.NoError(t, ValidName("a"))
	assert.NoError(t, ValidName("abcdefghijklmnopqrstuvw"), "23 bytes fits")
	for _, name := range []string{"", "abcdefghijklmnopqrstuvwx", "a/b", "a\x00"} {
		err := ValidName(name)
		assert.True(t, errors.Is(err, common.ErrInvalidArgument), "name %q", name)
	}
}

func TestEncodeEnt(t *testing.T) {
	data := encodeEnt("hello", 42)
	assert.Equal(t, int(common.DIRENTSZ), len(data))
	de, live := decodeEnt(data)
	assert.True(t, live)
	assert.Equal(t, DirEnt{Name: "hello", Inum: 42}, de)

	_, live = decodeEnt(make([]byte, common.DIRENTSZ))
	assert.False(t, live, "all-zero entry is a tombstone")
}

func TestInsertFind(t *testing.T) {
	d := mkDirTest()
	require.NoError(t, d.insert("a", 1))
	require.NoError(t, d.insert("b", 2))
	assert.Equal(t, 2*common.DIRENTSZ, d.dip.Size)
	assert.Equal(t, uint64(1), d.grown, "both entries fit in one block")

	inum, slot, err := Find(d.op, d.dip, "b")
	require.NoError(t, err)
	assert.Equal(t, common.Inum(2), inum)
	assert.Equal(t, uint64(1), slot)

	_, _, err = Find(d.op, d.dip, "c")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestInsertDuplicate(t *testing.T) {
	d := mkDirTest()
	require.NoError(t, d.insert("a", 1))
	err := d.insert("a", 2)
	assert.True(t, errors.Is(err, common.ErrNameExists))
	inum, _, err := Find(d.op, d.dip, "a")
	require.NoError(t, err)
	assert.Equal(t, common.Inum(1), inum, "original entry kept")
	assert.Equal(t, common.DIRENTSZ, d.dip.Size)
}

func TestRemoveLeavesTombstone(t *testing.T) {
	d := mkDirTest()
	require.NoError(t, d.insert("a", 1))
	require.NoError(t, d.insert("b", 2))
	require.NoError(t, d.insert("c", 3))

	inum, err := Remove(d.op, d.dip, "b")
	require.NoError(t, err)
	assert.Equal(t, common.Inum(2), inum)
	assert.Equal(t, 3*common.DIRENTSZ, d.dip.Size, "removal does not shrink")

	_, err = Remove(d.op, d.dip, "b")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	ents, err := List(d.op, d.dip)
	require.NoError(t, err)
	assert.Equal(t, []DirEnt{{"a", 1}, {"c", 3}}, ents)

	require.NoError(t, d.insert("d", 4))
	_, slot, err := Find(d.op, d.dip, "d")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), slot, "tombstone reused")
	assert.Equal(t, 3*common.DIRENTSZ, d.dip.Size)
}

func TestIsEmpty(t *testing.T) {
	d := mkDirTest()
	empty, err := IsEmpty(d.op, d.dip)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, d.insert("a", 1))
	empty, _ = IsEmpty(d.op, d.dip)
	assert.False(t, empty)

	_, err = Remove(d.op, d.dip, "a")
	require.NoError(t, err)
	empty, _ = IsEmpty(d.op, d.dip)
	assert.True(t, empty, "only tombstones left")
}

func TestGrowPastBlock(t *testing.T) {
	d := mkDirTest()
	n := common.DIRENTBLK + 3
	for i := uint64(0); i < n; i++ {
		require.NoError(t, d.insert(fmt.Sprintf("f%d", i), common.Inum(i+1)))
	}
	assert.Equal(t, uint64(2), d.grown)
	ents, err := List(d.op, d.dip)
	require.NoError(t, err)
	require.Equal(t, int(n), len(ents))
	assert.Equal(t, DirEnt{fmt.Sprintf("f%d", n-1), common.Inum(n)}, ents[n-1])
}

func TestAllocFailure(t *testing.T) {
	d := mkDirTest()
	fail := func(n uint64) ([]common.Bnum, error) {
		return nil, common.ErrOutOfSpace
	}
	err := Insert(d.op, d.dip, "a", 1, fail)
	assert.True(t, errors.Is(err, common.ErrOutOfSpace))
	assert.Equal(t, uint64(0), d.dip.Size)
}

func TestNotADirectory(t *testing.T) {
	d := mkDirTest()
	_, _, err := Find(d.op, inode.MkInode(common.KindFile), "a")
	assert.True(t, errors.Is(err, common.ErrInvalidArgument))
}
