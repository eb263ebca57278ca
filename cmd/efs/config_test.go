package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setenv(t *testing.T, key, value string) {
	old, had := os.LookupEnv(key)
	require.NoError(t, os.Setenv(key, value))
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoadConfigDefaults(t *testing.T) {
	setenv(t, "EFS_CONFIG_FILE", "")
	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), *c)
	assert.NoError(t, c.Validate())
}

func TestLoadConfigLayers(t *testing.T) {
	dir, err := ioutil.TempDir("", "efs-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "efs.yaml")
	require.NoError(t, ioutil.WriteFile(path,
		[]byte("image: disk.img\ntotalBlocks: 100\ninodes: 32\n"), 0644))

	setenv(t, "EFS_CONFIG_FILE", path)
	setenv(t, "EFS_INODES", "64")
	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disk.img", c.Image, "from file")
	assert.Equal(t, uint64(100), c.TotalBlocks, "from file")
	assert.Equal(t, uint64(64), c.Inodes, "environment wins")
	assert.Equal(t, uint64(64), c.CacheBlocks, "default kept")

	p := c.Params()
	assert.Equal(t, uint64(100), p.TotalBlocks)
}

func TestLoadConfigUnknownKey(t *testing.T) {
	dir, err := ioutil.TempDir("", "efs-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "efs.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("blocks: 100\n"), 0644))

	setenv(t, "EFS_CONFIG_FILE", path)
	_, err = LoadConfig()
	assert.Error(t, err)
}
