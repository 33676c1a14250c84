package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"hexwin/internal/databricks"
	"hexwin/internal/filecache"
	"hexwin/internal/logging"
)

// workspaceStore serves a remote workspace object. Reads come from a local
// snapshot; a flush patches the snapshot and uploads the whole object.
type workspaceStore struct {
	ctx     context.Context
	api     databricks.WorkspaceFilesAPI
	cache   *filecache.DiskCache
	path    string
	modTime time.Time
	size    uint64

	// mem holds the snapshot when the disk cache cannot.
	mem []byte
}

// OpenWorkspace opens a remote workspace object. Without wantWrite the
// source is readonly.
func OpenWorkspace(remotePath string, wantWrite bool, opts Options) (*WindowedFileSource, error) {
	if opts.Workspace == nil {
		return nil, fmt.Errorf("open ws:%s: workspace client is not configured", remotePath)
	}
	st := &workspaceStore{
		ctx:   opts.context(),
		api:   opts.Workspace,
		cache: opts.Cache,
		path:  remotePath,
	}
	w, err := newWindowed(st, !wantWrite, opts.windowSize())
	if err != nil {
		return nil, err
	}
	return &WindowedFileSource{w}, nil
}

func (s *workspaceStore) Name() string {
	return "ws:" + s.path
}

func (s *workspaceStore) Geometry() (Geometry, error) {
	info, err := s.api.Stat(s.ctx, s.path)
	if err != nil {
		return Geometry{}, fmt.Errorf("stat %s: %w", s.Name(), err)
	}
	if info.IsDir() {
		return Geometry{}, fmt.Errorf("open %s: is a directory", s.Name())
	}
	if info.ModTime().After(s.modTime) {
		s.mem = nil
	}
	s.modTime = info.ModTime()
	s.size = uint64(info.Size())
	return Geometry{Size: s.size, SectorSize: 1}, nil
}

// snapshot returns the local copy of the object, exporting it on a miss.
// Exactly one of localPath and data is set.
func (s *workspaceStore) snapshot() (localPath string, data []byte, err error) {
	if s.mem != nil {
		return "", s.mem, nil
	}
	if p, ok := s.cache.Get(s.path, s.modTime); ok {
		return p, nil, nil
	}

	data, err = s.api.ReadAll(s.ctx, s.path)
	if err != nil {
		return "", nil, fmt.Errorf("export %s: %w", s.Name(), err)
	}
	if !s.cache.IsDisabled() {
		p, err := s.cache.Put(s.path, data, s.modTime)
		if err == nil {
			return p, nil, nil
		}
		logging.Warnf("Keeping %s in memory, snapshot cache refused it: %v", s.Name(), err)
	}
	s.mem = data
	return "", data, nil
}

func (s *workspaceStore) ReadAt(p []byte, off int64) (int, error) {
	localPath, data, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	if localPath == "" {
		if off >= int64(len(data)) {
			return 0, fmt.Errorf("read %s at %d: snapshot is %d bytes", s.Name(), off, len(data))
		}
		n := copy(p, data[off:])
		if n < len(p) {
			return n, fmt.Errorf("read %s at %d: short snapshot", s.Name(), off)
		}
		return n, nil
	}
	return (&fileStore{path: localPath}).ReadAt(p, off)
}

func (s *workspaceStore) WriteAt(p []byte, off int64) (int, error) {
	localPath, data, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	if localPath != "" {
		data, err = os.ReadFile(localPath)
		if err != nil {
			return 0, fmt.Errorf("read snapshot of %s: %w", s.Name(), err)
		}
	}
	if off > int64(len(data)) {
		return 0, fmt.Errorf("write %s at %d: past end of %d-byte object", s.Name(), off, len(data))
	}
	n := copy(data[off:], p)

	if err := s.api.Write(s.ctx, s.path, data); err != nil {
		return 0, fmt.Errorf("import %s: %w", s.Name(), err)
	}

	if localPath != "" {
		if _, err := (&fileStore{path: localPath}).WriteAt(p[:n], off); err != nil {
			s.cache.Delete(s.path)
			return n, nil
		}
	}
	// Our own upload moves the remote mod time; the patched snapshot stays valid.
	info, err := s.api.Stat(s.ctx, s.path)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return n, err
		}
		logging.Warnf("Stat after upload of %s failed, dropping snapshot: %v", s.Name(), err)
		s.cache.Delete(s.path)
		s.mem = nil
		return n, nil
	}
	s.modTime = info.ModTime()
	s.cache.Touch(s.path, s.modTime)
	logging.Debugf("Uploaded %s after patching %d bytes at %d", s.Name(), n, off)
	return n, nil
}
