package filecache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"hexwin/internal/logging"
)

// ErrDisabled is returned by writes to a pass-through cache.
var ErrDisabled = errors.New("snapshot cache is disabled")

const defaultMaxSize = 2 * 1024 * 1024 * 1024

// Entry is one cached snapshot of a remote object.
type Entry struct {
	RemotePath string
	LocalPath  string
	Size       int64
	ModTime    time.Time
	AccessTime time.Time
}

// DiskCache keeps local snapshots of remote objects so window reloads read
// from disk instead of re-exporting. Entries are keyed by remote path and
// invalidated when the remote mod time moves forward.
type DiskCache struct {
	dir      string
	maxSize  int64
	entries  map[string]*Entry
	size     int64
	mu       sync.Mutex
	disabled bool
	now      func() time.Time
}

// NewDiskCache creates the cache directory. maxSize 0 means 2 GiB.
func NewDiskCache(dir string, maxSize int64) (*DiskCache, error) {
	if maxSize == 0 {
		maxSize = defaultMaxSize
	}
	// Snapshots may hold device or workspace content; keep them private.
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	c := &DiskCache{
		dir:     dir,
		maxSize: maxSize,
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	c.removeOrphans()
	return c, nil
}

// NewDisabledCache returns a cache that never hits.
func NewDisabledCache() *DiskCache {
	return &DiskCache{disabled: true, entries: make(map[string]*Entry), now: time.Now}
}

func (c *DiskCache) IsDisabled() bool {
	return c == nil || c.disabled
}

// Get returns the snapshot path for remotePath unless it is missing or
// older than remoteModTime.
func (c *DiskCache) Get(remotePath string, remoteModTime time.Time) (string, bool) {
	if c.IsDisabled() {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[remotePath]
	if !ok {
		return "", false
	}
	if !remoteModTime.IsZero() && remoteModTime.After(entry.ModTime) {
		c.dropLocked(remotePath)
		return "", false
	}
	if _, err := os.Stat(entry.LocalPath); err != nil {
		c.dropLocked(remotePath)
		return "", false
	}
	entry.AccessTime = c.now()
	return entry.LocalPath, true
}

// Put stores data as the snapshot of remotePath.
func (c *DiskCache) Put(remotePath string, data []byte, remoteModTime time.Time) (string, error) {
	if c.IsDisabled() {
		return "", ErrDisabled
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(data))
	if old, ok := c.entries[remotePath]; ok {
		c.size -= old.Size
		delete(c.entries, remotePath)
	}
	if err := c.makeRoomLocked(size); err != nil {
		return "", err
	}

	localPath := c.localPath(remotePath)
	if err := os.WriteFile(localPath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	c.entries[remotePath] = &Entry{
		RemotePath: remotePath,
		LocalPath:  localPath,
		Size:       size,
		ModTime:    remoteModTime,
		AccessTime: c.now(),
	}
	c.size += size
	return localPath, nil
}

// Touch records a new remote mod time for an entry whose snapshot was
// patched locally and uploaded.
func (c *DiskCache) Touch(remotePath string, remoteModTime time.Time) {
	if c.IsDisabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[remotePath]; ok {
		entry.ModTime = remoteModTime
		entry.AccessTime = c.now()
	}
}

func (c *DiskCache) Delete(remotePath string) {
	if c.IsDisabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(remotePath)
}

// Stats returns the number of entries and their total size.
func (c *DiskCache) Stats() (int, int64) {
	if c.IsDisabled() {
		return 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.size
}

func (c *DiskCache) dropLocked(remotePath string) {
	entry, ok := c.entries[remotePath]
	if !ok {
		return
	}
	os.Remove(entry.LocalPath) // best effort
	delete(c.entries, remotePath)
	c.size -= entry.Size
}

// makeRoomLocked evicts least recently used snapshots until size fits.
func (c *DiskCache) makeRoomLocked(size int64) error {
	if size > c.maxSize {
		return fmt.Errorf("snapshot of %d bytes exceeds cache size %d", size, c.maxSize)
	}
	for c.size+size > c.maxSize {
		var oldest *Entry
		for _, e := range c.entries {
			if oldest == nil || e.AccessTime.Before(oldest.AccessTime) {
				oldest = e
			}
		}
		if oldest == nil {
			break
		}
		logging.Debugf("Evicting snapshot of %s (%d bytes)", oldest.RemotePath, oldest.Size)
		c.dropLocked(oldest.RemotePath)
	}
	return nil
}

func (c *DiskCache) localPath(remotePath string) string {
	sum := sha256.Sum256([]byte(remotePath))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:]))
}

// isSnapshotName reports whether name has the shape localPath produces.
func isSnapshotName(name string) bool {
	if len(name) != 2*sha256.Size {
		return false
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if !('0' <= ch && ch <= '9' || 'a' <= ch && ch <= 'f') {
			return false
		}
	}
	return true
}

// removeOrphans deletes snapshots left by an earlier process; their remote
// paths cannot be recovered from the hashed names. Other files are left alone.
func (c *DiskCache) removeOrphans() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		logging.Warnf("Failed to scan snapshot cache %s: %v", c.dir, err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !isSnapshotName(e.Name()) {
			continue
		}
		os.Remove(filepath.Join(c.dir, e.Name()))
	}
}
