package databricks

import (
	"context"
	"io/fs"
)

// WorkspaceFilesAPI is the surface a remote byte source needs.
// It allows swapping in test doubles without touching source logic.
type WorkspaceFilesAPI interface {
	Stat(ctx context.Context, filePath string) (fs.FileInfo, error)
	ReadAll(ctx context.Context, filePath string) ([]byte, error)
	Write(ctx context.Context, filePath string, data []byte) error
}
