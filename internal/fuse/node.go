// Package fuse exports one open byte source as a single regular file in a
// FUSE mount.
package fuse

import (
	"context"
	"errors"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"hexwin/internal/logging"
	"hexwin/internal/source"
)

// File system constants
const (
	// Attribute and entry cache timeouts in seconds
	attrTimeoutSec  = 1
	entryTimeoutSec = 1

	// File permissions
	dirMode      = 0755
	fileMode     = 0644
	readonlyMode = 0444

	// Block size for file attributes
	blockSize   = 4096
	blockFactor = 512 // for calculating number of blocks

	// Inode numbers
	rootIno = 1
	fileIno = 2

	// Nlink values
	dirNlink  = 2
	fileNlink = 1
)

// RootNode is the mount root. It holds exactly one child, the exported file.
type RootNode struct {
	fs.Inode
	file *FileNode
}

// FileNode serves reads and writes from a source. Every kernel callback
// goes through the source's lock so the source keeps a single owner.
type FileNode struct {
	fs.Inode
	name    string
	src     *source.Locked
	mounted time.Time
}

var _ = (fs.NodeOnAdder)((*RootNode)(nil))
var _ = (fs.NodeGetattrer)((*RootNode)(nil))

var _ = (fs.NodeGetattrer)((*FileNode)(nil))
var _ = (fs.NodeOpener)((*FileNode)(nil))
var _ = (fs.NodeReader)((*FileNode)(nil))
var _ = (fs.NodeWriter)((*FileNode)(nil))
var _ = (fs.NodeFlusher)((*FileNode)(nil))
var _ = (fs.NodeFsyncer)((*FileNode)(nil))
var _ = (fs.NodeSetattrer)((*FileNode)(nil))

// NewRoot builds the tree for a mount that exposes src as name.
func NewRoot(name string, src *source.Locked) *RootNode {
	return &RootNode{file: NewFileNode(name, src)}
}

func NewFileNode(name string, src *source.Locked) *FileNode {
	return &FileNode{name: name, src: src, mounted: time.Now()}
}

// File returns the exported file node.
func (r *RootNode) File() *FileNode {
	return r.file
}

func (r *RootNode) OnAdd(ctx context.Context) {
	child := r.NewPersistentInode(ctx, r.file, fs.StableAttr{Mode: syscall.S_IFREG, Ino: fileIno})
	r.AddChild(r.file.name, child, false)
	logging.Debugf("Exported %s", r.file.name)
}

func (r *RootNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFDIR | dirMode
	out.Nlink = dirNlink
	out.Ino = rootIno
	fillOwner(ctx, &out.Attr)
	out.SetTimeout(attrTimeoutSec * time.Second)
	return 0
}

func fillOwner(ctx context.Context, out *fuse.Attr) {
	caller, ok := fuse.FromContext(ctx)
	if ok {
		out.Uid = caller.Uid
		out.Gid = caller.Gid
	}
}

// toErrno maps source errors to what the kernel expects.
func toErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, source.ErrReadOnlyViolation):
		return syscall.EROFS
	case errors.Is(err, source.ErrDeviceAccessDenied):
		return syscall.EACCES
	case errors.Is(err, source.ErrOutOfRange):
		return syscall.EINVAL
	case errors.Is(err, source.ErrClosed):
		return syscall.EBADF
	}
	return syscall.EIO
}

func (n *FileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	logging.Debugf("Getattr called on %s", n.name)

	var size uint64
	var readonly bool
	_ = n.src.Do(func(src source.ByteSource) error {
		size = src.Len()
		readonly = src.ReadOnly()
		return nil
	})

	out.Mode = syscall.S_IFREG | fileMode
	if readonly {
		out.Mode = syscall.S_IFREG | readonlyMode
	}
	out.Nlink = fileNlink
	out.Ino = fileIno
	out.Size = size
	out.Blksize = blockSize
	out.Blocks = (size + blockFactor - 1) / blockFactor
	out.Mtime = uint64(n.mounted.Unix())
	out.Atime = out.Mtime
	out.Ctime = out.Mtime
	fillOwner(ctx, &out.Attr)
	out.SetTimeout(attrTimeoutSec * time.Second)
	return 0
}

// Setattr accepts attribute updates that leave the size alone. The stream
// has a fixed length.
func (n *FileNode) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		var current uint64
		_ = n.src.Do(func(src source.ByteSource) error {
			current = src.Len()
			return nil
		})
		if size != current {
			logging.Debugf("Setattr: refusing to resize %s from %d to %d", n.name, current, size)
			return syscall.EPERM
		}
	}
	return n.Getattr(ctx, fh, out)
}

func (n *FileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	logging.Debugf("Open called on %s (flags: %#x)", n.name, flags)

	if flags&syscall.O_TRUNC != 0 {
		return nil, 0, syscall.EPERM
	}
	writing := flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0
	if writing {
		var readonly bool
		_ = n.src.Do(func(src source.ByteSource) error {
			readonly = src.ReadOnly()
			return nil
		})
		if readonly {
			return nil, 0, syscall.EROFS
		}
		return nil, fuse.FOPEN_DIRECT_IO, 0
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *FileNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	logging.Debugf("Read called on %s, offset: %d, size: %d", n.name, off, len(dest))
	if off < 0 {
		return nil, syscall.EINVAL
	}

	var got int
	err := n.src.Do(func(src source.ByteSource) error {
		if uint64(off) >= src.Len() || len(dest) == 0 {
			return nil
		}
		return source.Borrow(src, uint64(off), uint32(len(dest)), func(v source.View) error {
			got = copy(dest, v)
			return nil
		})
	})
	if err != nil {
		logging.Warnf("Read of %s at %d failed: %v", n.name, off, err)
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(dest[:got]), 0
}

// Write copies data into the window. Bytes past the end of the stream are
// not written, so the count may be short; a write that starts past the end
// fails with EFBIG.
func (n *FileNode) Write(ctx context.Context, fh fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	logging.Debugf("Write called on %s, offset: %d, size: %d", n.name, off, len(data))
	if off < 0 {
		return 0, syscall.EINVAL
	}

	var written int
	err := n.src.Do(func(src source.ByteSource) error {
		if src.ReadOnly() {
			return source.ErrReadOnlyViolation
		}
		if len(data) > 0 && uint64(off) >= src.Len() {
			return errPastEnd
		}
		var err error
		written, err = source.Write(src, uint64(off), data)
		return err
	})
	if errors.Is(err, errPastEnd) {
		return 0, syscall.EFBIG
	}
	if err != nil {
		logging.Warnf("Write to %s at %d failed: %v", n.name, off, err)
		return uint32(written), toErrno(err)
	}
	return uint32(written), 0
}

var errPastEnd = errors.New("write starts past the end of the stream")

func (n *FileNode) Flush(ctx context.Context, fh fs.FileHandle) syscall.Errno {
	logging.Debugf("Flush called on %s", n.name)
	return n.flush()
}

func (n *FileNode) Fsync(ctx context.Context, fh fs.FileHandle, flags uint32) syscall.Errno {
	logging.Debugf("Fsync called on %s", n.name)
	return n.flush()
}

func (n *FileNode) flush() syscall.Errno {
	if err := n.src.Flush(); err != nil {
		logging.Warnf("Flush of %s failed: %v", n.name, err)
		return toErrno(err)
	}
	return 0
}
