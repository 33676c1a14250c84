package fuse

import (
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"hexwin/internal/source"
)

// Options configures a mount.
type Options struct {
	AllowOther bool
	Debug      bool
}

// MountOptions builds the go-fuse options for a mount called name.
func MountOptions(name string, opts Options) *fs.Options {
	attrTimeout := attrTimeoutSec * time.Second
	entryTimeout := entryTimeoutSec * time.Second

	o := &fs.Options{
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
		MountOptions: fuse.MountOptions{
			AllowOther: opts.AllowOther,
			Name:       "hexwin",
			FsName:     "hexwin:" + name,
		},
	}
	o.Debug = opts.Debug
	return o
}

// Mount serves src as the file name under mountPoint. The caller waits on
// and unmounts the returned server.
func Mount(mountPoint, name string, src *source.Locked, opts Options) (*fuse.Server, error) {
	return fs.Mount(mountPoint, NewRoot(name, src), MountOptions(name, opts))
}
