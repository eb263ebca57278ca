package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mit-pdos/go-easyfs/common"
)

func TestFlatid(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(0), MkBlockAddr(0).Flatid())
	assert.Equal(2*common.NBITBLOCK+16, MkAddr(2, 16).Flatid())
	assert.Equal(uint64(2), MkAddr(2, 16).ByteOff())
}
