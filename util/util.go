package util

import (
	"github.com/sirupsen/logrus"
)

var Debug uint64 = 0

var logger = logrus.New()

func init() {
	logger.SetLevel(logrus.DebugLevel)
}

// SetDebug sets the highest DPrintf level that is printed.
func SetDebug(level uint64) {
	Debug = level
}

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		logger.WithField("level", level).Debugf(format, a...)
	}
}

func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

func CloneByteSlice(s []byte) []byte {
	s2 := make([]byte, len(s))
	copy(s2, s)
	return s2
}

// SumOverflows reports whether a+b wraps around.
func SumOverflows(a uint64, b uint64) bool {
	return a+b < a
}
