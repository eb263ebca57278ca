package disk

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var _ Disk = (*fileDisk)(nil)

type fileDisk struct {
	fd        int
	numBlocks uint64
}

// NewFileDisk opens (creating if needed) a disk image at path holding
// numBlocks blocks. Regular files are resized to fit.
func NewFileDisk(path string, numBlocks uint64) (Disk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, err
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if (stat.Mode&unix.S_IFMT) == unix.S_IFREG && uint64(stat.Size) != numBlocks*BlockSize {
		err = unix.Ftruncate(fd, int64(numBlocks*BlockSize))
		if err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	return &fileDisk{fd, numBlocks}, nil
}

// OpenFileDisk opens an existing image, sizing the disk from the file.
func OpenFileDisk(path string) (Disk, error) {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return nil, err
	}
	if uint64(stat.Size)%BlockSize != 0 {
		return nil, fmt.Errorf("%s: size %d is not a multiple of %d", path, stat.Size, BlockSize)
	}
	return NewFileDisk(path, uint64(stat.Size)/BlockSize)
}

func (d *fileDisk) ReadTo(a uint64, buf Block) error {
	if err := checkAccess(a, d.numBlocks, buf); err != nil {
		return err
	}
	_, err := unix.Pread(d.fd, buf, int64(a*BlockSize))
	if err != nil {
		return fmt.Errorf("read %d: %w", a, err)
	}
	return nil
}

func (d *fileDisk) Read(a uint64) (Block, error) {
	buf := make([]byte, BlockSize)
	if err := d.ReadTo(a, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *fileDisk) Write(a uint64, v Block) error {
	if err := checkAccess(a, d.numBlocks, v); err != nil {
		return err
	}
	_, err := unix.Pwrite(d.fd, v, int64(a*BlockSize))
	if err != nil {
		return fmt.Errorf("write %d: %w", a, err)
	}
	return nil
}

func (d *fileDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

func (d *fileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	return unix.Fsync(d.fd)
}

func (d *fileDisk) Close() error {
	return unix.Close(d.fd)
}
