package source

import (
	"fmt"
	"os"
)

// fileStore reopens the file for every reload and flush.
type fileStore struct {
	path string
}

func (s *fileStore) Name() string {
	return s.path
}

func (s *fileStore) Geometry() (Geometry, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return Geometry{}, fmt.Errorf("stat %s: %w", s.path, err)
	}
	if info.IsDir() {
		return Geometry{}, fmt.Errorf("open %s: is a directory", s.path)
	}
	return Geometry{Size: uint64(info.Size()), SectorSize: 1}, nil
}

func (s *fileStore) ReadAt(p []byte, off int64) (int, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()
	n, err := f.ReadAt(p, off)
	if err != nil && n < len(p) {
		return n, fmt.Errorf("read %s at %d: %w", s.path, off, err)
	}
	return n, nil
}

func (s *fileStore) WriteAt(p []byte, off int64) (int, error) {
	f, err := os.OpenFile(s.path, os.O_WRONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s for writing: %w", s.path, err)
	}
	n, err := f.WriteAt(p, off)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write %s at %d: %w", s.path, off, err)
	}
	return n, nil
}

func (s *fileStore) checkWritable() error {
	f, err := os.OpenFile(s.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s for writing: %w", s.path, err)
	}
	return f.Close()
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
