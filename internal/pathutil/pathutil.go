// Package pathutil classifies command-line targets.
//
// A target names one of three backing stores:
//   - a workspace object: "ws:/Users/someone/blob.bin"
//   - a raw device: "/dev/sdb", "/dev/disk2", or a Windows drive "\\.\PhysicalDrive0"
//   - anything else is a regular file path
//
// Whether a path under /dev really is a device is decided by the caller
// from its file mode; this package only looks at the spelling.
package pathutil

import (
	"path"
	"strings"
)

// WorkspacePrefix marks a remote workspace object.
const WorkspacePrefix = "ws:"

type Kind int

const (
	KindFile Kind = iota
	KindDevice
	KindWorkspace
)

func (k Kind) String() string {
	switch k {
	case KindDevice:
		return "device"
	case KindWorkspace:
		return "workspace"
	}
	return "file"
}

// Target is a parsed command-line target.
type Target struct {
	Kind Kind
	Path string
}

// ParseTarget classifies s. Workspace paths are cleaned and made absolute.
func ParseTarget(s string) Target {
	if strings.HasPrefix(s, WorkspacePrefix) {
		return Target{Kind: KindWorkspace, Path: ToRemotePath(strings.TrimPrefix(s, WorkspacePrefix))}
	}
	if LooksLikeDevice(s) {
		return Target{Kind: KindDevice, Path: s}
	}
	return Target{Kind: KindFile, Path: s}
}

// ToRemotePath cleans a workspace path and roots it at "/".
func ToRemotePath(p string) string {
	return path.Clean("/" + p)
}

// LooksLikeDevice reports whether s is spelled like a raw device.
func LooksLikeDevice(s string) bool {
	if strings.HasPrefix(s, `\\.\`) {
		return true
	}
	return strings.HasPrefix(s, "/dev/") && len(s) > len("/dev/")
}

// DisplayName is the last element of a target, used to name exported files.
func DisplayName(t Target) string {
	p := strings.TrimPrefix(t.Path, `\\.\`)
	p = strings.TrimRight(p, `/\`)
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		p = p[i+1:]
	}
	if p == "" {
		return "stream"
	}
	return p
}
