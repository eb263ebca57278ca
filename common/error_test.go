package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestCode(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(int64(0), Code(nil))
	assert.Equal(-int64(unix.ENOENT), Code(ErrNotFound))
	assert.Equal(-int64(unix.EEXIST), Code(fmt.Errorf("link b: %w", ErrNameExists)))
	assert.Equal(-int64(unix.EINVAL), Code(ErrInvalidArgument))
	assert.Equal(-int64(unix.ENOSPC), Code(ErrOutOfSpace))
	assert.Equal(-int64(unix.EIO), Code(ErrInconsistent))
	assert.Equal(-int64(unix.EIO), Code(errors.New("device on fire")))
}

func TestLayoutConstants(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(32), INODEBLK)
	assert.Equal(INODESZ, 8*(3+NDIRECT+2), "inode fields fill the record")
	assert.Equal(uint64(128), DIRENTBLK)
	assert.Equal(DIRENTSZ, NAMELEN+8)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "dir", KindDir.String())
	assert.Equal(t, "file", KindFile.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
