//go:build linux

package source

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// sectorSize asks the kernel for the logical sector size. Image files
// and other non-block targets fall back to defaultSectorSize.
func sectorSize(f *os.File) (uint64, error) {
	n, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err != nil {
		if errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EINVAL) {
			return defaultSectorSize, nil
		}
		return 0, err
	}
	if n <= 0 {
		return defaultSectorSize, nil
	}
	return uint64(n), nil
}

func isTransient(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)
}
