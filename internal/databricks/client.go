package databricks

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"time"

	"github.com/databricks/databricks-sdk-go"
	"github.com/databricks/databricks-sdk-go/apierr"
	"github.com/databricks/databricks-sdk-go/service/workspace"

	"hexwin/internal/logging"
	"hexwin/internal/metacache"
	"hexwin/internal/retry"
)

// statTTL bounds how stale a cached object size may be. Sources re-query
// geometry on every window reload.
const statTTL = 5 * time.Second

// WSFileInfo

type WSFileInfo struct {
	workspace.ObjectInfo
}

func (info WSFileInfo) Name() string {
	return path.Base(info.Path)
}

func (info WSFileInfo) Size() int64 {
	return info.ObjectInfo.Size
}

func (info WSFileInfo) Mode() fs.FileMode {
	if info.IsDir() {
		return fs.ModeDir | 0755
	}
	return 0644
}

func (info WSFileInfo) ModTime() time.Time {
	return time.UnixMilli(info.ModifiedAt)
}

func (info WSFileInfo) IsDir() bool {
	return info.ObjectType == workspace.ObjectTypeDirectory || info.ObjectType == workspace.ObjectTypeRepo
}

func (info WSFileInfo) Sys() any {
	return info.ObjectInfo
}

// workspaceClient is the slice of workspace.WorkspaceInterface in use.
type workspaceClient interface {
	GetStatus(ctx context.Context, request workspace.GetStatusRequest) (*workspace.ObjectInfo, error)
	Export(ctx context.Context, request workspace.ExportRequest) (*workspace.ExportResponse, error)
	Import(ctx context.Context, request workspace.Import) error
}

type WorkspaceFilesClient struct {
	workspaceClient workspaceClient
	cache           *metacache.Cache[WSFileInfo]
	retry           retry.Config
}

func NewWorkspaceFilesClient(w *databricks.WorkspaceClient) (*WorkspaceFilesClient, error) {
	if w == nil || w.Workspace == nil {
		return nil, errors.New("workspace client is not configured")
	}
	return NewWorkspaceFilesClientWithDeps(w.Workspace, retry.DefaultConfig()), nil
}

func NewWorkspaceFilesClientWithDeps(wc workspaceClient, cfg retry.Config) *WorkspaceFilesClient {
	return &WorkspaceFilesClient{
		workspaceClient: wc,
		cache:           metacache.New[WSFileInfo](statTTL),
		retry:           cfg,
	}
}

// IsRetryable reports whether err is a transient API failure.
func IsRetryable(err error) bool {
	var apiErr *apierr.APIError
	if errors.As(err, &apiErr) {
		return retry.IsRetryableStatus(apiErr.StatusCode)
	}
	return false
}

func isNotFound(err error) bool {
	var apiErr *apierr.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func (c *WorkspaceFilesClient) Stat(ctx context.Context, filePath string) (fs.FileInfo, error) {
	info, state := c.cache.Lookup(filePath)
	switch state {
	case metacache.Hit:
		return info, nil
	case metacache.Missing:
		return nil, fmt.Errorf("stat %s: %w", filePath, fs.ErrNotExist)
	}

	var obj *workspace.ObjectInfo
	err := c.retry.Do(ctx, "stat "+filePath, IsRetryable, func() error {
		var err error
		obj, err = c.workspaceClient.GetStatus(ctx, workspace.GetStatusRequest{Path: filePath})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			c.cache.SetMissing(filePath)
			return nil, fmt.Errorf("stat %s: %w", filePath, fs.ErrNotExist)
		}
		return nil, err
	}

	info = WSFileInfo{ObjectInfo: *obj}
	c.cache.Set(filePath, info)
	return info, nil
}

func (c *WorkspaceFilesClient) ReadAll(ctx context.Context, filePath string) ([]byte, error) {
	var resp *workspace.ExportResponse
	err := c.retry.Do(ctx, "export "+filePath, IsRetryable, func() error {
		var err error
		resp, err = c.workspaceClient.Export(ctx, workspace.ExportRequest{
			Path:   filePath,
			Format: workspace.ExportFormatSource,
		})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("export %s: %w", filePath, fs.ErrNotExist)
		}
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("decode export of %s: %w", filePath, err)
	}
	logging.Debugf("Exported %s (%d bytes)", filePath, len(data))
	return data, nil
}

func (c *WorkspaceFilesClient) Write(ctx context.Context, filePath string, data []byte) error {
	c.cache.Invalidate(filePath)

	err := c.retry.Do(ctx, "import "+filePath, IsRetryable, func() error {
		return c.workspaceClient.Import(ctx, workspace.Import{
			Path:      filePath,
			Content:   base64.StdEncoding.EncodeToString(data),
			Format:    workspace.ImportFormatAuto,
			Overwrite: true,
		})
	})
	if err != nil {
		return err
	}
	logging.Debugf("Imported %s (%d bytes)", filePath, len(data))
	return nil
}
