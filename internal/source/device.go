package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"hexwin/internal/logging"
	"hexwin/internal/retry"
)

// defaultSectorSize is assumed when the platform cannot report one.
const defaultSectorSize = 512

// RawDeviceSource serves a block device through a sector-aligned window.
// The device is shared with the rest of the system, so geometry is queried
// again on every reload and by Len.
type RawDeviceSource struct {
	*windowed
}

var _ ByteSource = (*RawDeviceSource)(nil)

// OpenDevice opens a raw block device. Privilege failures are reported as
// ErrDeviceAccessDenied.
func OpenDevice(path string, wantWrite bool, opts Options) (*RawDeviceSource, error) {
	st := &deviceStore{path: path, write: wantWrite, retry: retry.DeviceConfig()}
	if wantWrite {
		f, err := st.open()
		if err != nil {
			return nil, err
		}
		f.Close()
	}
	return newRawDevice(st, wantWrite, opts.windowSize())
}

func newRawDevice(st store, wantWrite bool, maxLen uint64) (*RawDeviceSource, error) {
	w, err := newWindowed(st, !wantWrite, maxLen)
	if err != nil {
		return nil, err
	}
	return &RawDeviceSource{w}, nil
}

// Len queries the device size. On failure the last known size is returned.
func (s *RawDeviceSource) Len() uint64 {
	geom, err := s.store.Geometry()
	if err != nil {
		logging.Warnf("Geometry query failed for %s, using last known size: %v", s.store.Name(), err)
		return s.geom.Size
	}
	s.setGeometry(geom)
	return s.geom.Size
}

// Read checks pos against the live device size before serving from the
// window, so a shrink is seen even when the window still covers pos.
func (s *RawDeviceSource) Read(pos uint64, n uint32) (View, error) {
	if s.closed {
		return nil, ErrClosed
	}
	s.Len()
	return s.windowed.Read(pos, n)
}

// SectorSize is the sector size seen at the last geometry query.
func (s *RawDeviceSource) SectorSize() uint64 {
	return s.geom.SectorSize
}

// deviceStore opens the device for every geometry query, reload, and flush.
type deviceStore struct {
	path  string
	write bool
	retry retry.Config
}

func (d *deviceStore) Name() string {
	return d.path
}

func (d *deviceStore) open() (*os.File, error) {
	flag := os.O_RDONLY
	if d.write {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(d.path, flag, 0)
	if err != nil {
		return nil, deviceError("open", d.path, err)
	}
	return f, nil
}

func (d *deviceStore) Geometry() (Geometry, error) {
	f, err := d.open()
	if err != nil {
		return Geometry{}, err
	}
	defer f.Close()

	sector, err := sectorSize(f)
	if err != nil {
		return Geometry{}, deviceError("query sector size of", d.path, err)
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return Geometry{}, deviceError("query size of", d.path, err)
	}
	// Only whole sectors are addressable.
	size := uint64(end) - uint64(end)%sector
	return Geometry{Size: size, SectorSize: sector}, nil
}

func (d *deviceStore) ReadAt(p []byte, off int64) (int, error) {
	f, err := d.open()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var n int
	err = d.retry.Do(context.Background(), "read "+d.path, isTransient, func() error {
		var rerr error
		n, rerr = f.ReadAt(p, off)
		if rerr != nil && n == len(p) {
			rerr = nil
		}
		return rerr
	})
	if err != nil {
		return n, deviceError(fmt.Sprintf("read at %d from", off), d.path, err)
	}
	return n, nil
}

func (d *deviceStore) WriteAt(p []byte, off int64) (int, error) {
	f, err := d.open()
	if err != nil {
		return 0, err
	}

	var n int
	err = d.retry.Do(context.Background(), "write "+d.path, isTransient, func() error {
		var werr error
		n, werr = f.WriteAt(p, off)
		return werr
	})
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, deviceError(fmt.Sprintf("write at %d to", off), d.path, err)
	}
	return n, nil
}

func deviceError(op, path string, err error) error {
	if errors.Is(err, ErrDeviceAccessDenied) || errors.Is(err, ErrDeviceIO) {
		return err
	}
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%s %s: %w: %w", op, path, ErrDeviceAccessDenied, err)
	}
	return fmt.Errorf("%s %s: %w: %w", op, path, ErrDeviceIO, err)
}

// IsDevice reports whether path names a block or character device.
func IsDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&fs.ModeDevice != 0
}
