//go:build !linux

package source

import (
	"errors"
	"os"
	"syscall"
)

func sectorSize(f *os.File) (uint64, error) {
	return defaultSectorSize, nil
}

func isTransient(err error) bool {
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
}
