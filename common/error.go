package common

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Error is one of the failure kinds a filesystem operation can report.
type Error uint64

const (
	ErrNotFound Error = iota + 1
	ErrNameExists
	ErrInvalidArgument
	ErrOutOfSpace
	ErrInconsistent
)

var errNames = map[Error]string{
	ErrNotFound:        "not found",
	ErrNameExists:      "name exists",
	ErrInvalidArgument: "invalid argument",
	ErrOutOfSpace:      "out of space",
	ErrInconsistent:    "inconsistent filesystem",
}

func (e Error) Error() string {
	if s, ok := errNames[e]; ok {
		return s
	}
	return "unknown error"
}

// Errno is the conventional error number for e.
func (e Error) Errno() unix.Errno {
	switch e {
	case ErrNotFound:
		return unix.ENOENT
	case ErrNameExists:
		return unix.EEXIST
	case ErrInvalidArgument:
		return unix.EINVAL
	case ErrOutOfSpace:
		return unix.ENOSPC
	}
	return unix.EIO
}

// Code turns err into a syscall-style return value: 0 on success and a
// negative errno otherwise. Errors that are not filesystem kinds (device
// failures) report EIO.
func Code(err error) int64 {
	if err == nil {
		return 0
	}
	var e Error
	if errors.As(err, &e) {
		return -int64(e.Errno())
	}
	return -int64(unix.EIO)
}
