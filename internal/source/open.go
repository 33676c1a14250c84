package source

import (
	"hexwin/internal/pathutil"
)

// Open classifies target and opens the matching variant. A path is treated
// as a raw device when opts.Device is set, when its file mode says so, or
// when it is spelled like one and cannot be stat'ed as a regular file.
func Open(target string, wantWrite bool, opts Options) (ByteSource, error) {
	t := pathutil.ParseTarget(target)
	switch {
	case t.Kind == pathutil.KindWorkspace:
		return OpenWorkspace(t.Path, wantWrite, opts)
	case opts.Device || IsDevice(t.Path):
		return OpenDevice(t.Path, wantWrite, opts)
	case t.Kind == pathutil.KindDevice && !isRegular(t.Path):
		return OpenDevice(t.Path, wantWrite, opts)
	}
	return OpenFile(t.Path, wantWrite, opts)
}
