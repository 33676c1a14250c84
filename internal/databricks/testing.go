package databricks

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/databricks/databricks-sdk-go/service/workspace"
)

// FakeWorkspaceAPI is a test double for WorkspaceFilesAPI
type FakeWorkspaceAPI struct {
	StatFunc    func(ctx context.Context, filePath string) (fs.FileInfo, error)
	ReadAllFunc func(ctx context.Context, filePath string) ([]byte, error)
	WriteFunc   func(ctx context.Context, filePath string, data []byte) error
}

func (f *FakeWorkspaceAPI) Stat(ctx context.Context, filePath string) (fs.FileInfo, error) {
	if f.StatFunc != nil {
		return f.StatFunc(ctx, filePath)
	}
	return nil, fs.ErrNotExist
}

func (f *FakeWorkspaceAPI) ReadAll(ctx context.Context, filePath string) ([]byte, error) {
	if f.ReadAllFunc != nil {
		return f.ReadAllFunc(ctx, filePath)
	}
	return nil, fs.ErrNotExist
}

func (f *FakeWorkspaceAPI) Write(ctx context.Context, filePath string, data []byte) error {
	if f.WriteFunc != nil {
		return f.WriteFunc(ctx, filePath, data)
	}
	return nil
}

// MockWorkspaceClient is a mock for the workspaceClient interface (thin wrapper)
type MockWorkspaceClient struct {
	GetStatusFunc func(ctx context.Context, request workspace.GetStatusRequest) (*workspace.ObjectInfo, error)
	ExportFunc    func(ctx context.Context, request workspace.ExportRequest) (*workspace.ExportResponse, error)
	ImportFunc    func(ctx context.Context, request workspace.Import) error
}

func (m *MockWorkspaceClient) GetStatus(ctx context.Context, request workspace.GetStatusRequest) (*workspace.ObjectInfo, error) {
	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, request)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *MockWorkspaceClient) Export(ctx context.Context, request workspace.ExportRequest) (*workspace.ExportResponse, error) {
	if m.ExportFunc != nil {
		return m.ExportFunc(ctx, request)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *MockWorkspaceClient) Import(ctx context.Context, request workspace.Import) error {
	if m.ImportFunc != nil {
		return m.ImportFunc(ctx, request)
	}
	return fmt.Errorf("not implemented")
}

func NewTestFileInfo(path string, size int64, isDir bool) WSFileInfo {
	objType := workspace.ObjectTypeFile
	if isDir {
		objType = workspace.ObjectTypeDirectory
	}

	return WSFileInfo{
		ObjectInfo: workspace.ObjectInfo{
			Path:       path,
			ObjectType: objType,
			Size:       size,
			ModifiedAt: time.Now().UnixMilli(),
		},
	}
}

// InMemoryWorkspace backs a FakeWorkspaceAPI with a map of objects.
type InMemoryWorkspace struct {
	files   map[string][]byte
	modTime map[string]time.Time
	Writes  int
}

func NewInMemoryWorkspace() *InMemoryWorkspace {
	return &InMemoryWorkspace{
		files:   make(map[string][]byte),
		modTime: make(map[string]time.Time),
	}
}

func (m *InMemoryWorkspace) SetFile(path string, content []byte) {
	m.files[path] = append([]byte(nil), content...)
	m.modTime[path] = time.Now()
}

func (m *InMemoryWorkspace) GetFile(path string) ([]byte, bool) {
	content, exists := m.files[path]
	return content, exists
}

// API returns a FakeWorkspaceAPI reading and writing this workspace.
func (m *InMemoryWorkspace) API() *FakeWorkspaceAPI {
	return &FakeWorkspaceAPI{
		StatFunc: func(ctx context.Context, filePath string) (fs.FileInfo, error) {
			data, ok := m.files[filePath]
			if !ok {
				return nil, fs.ErrNotExist
			}
			info := NewTestFileInfo(filePath, int64(len(data)), false)
			info.ModifiedAt = m.modTime[filePath].UnixMilli()
			return info, nil
		},
		ReadAllFunc: func(ctx context.Context, filePath string) ([]byte, error) {
			data, ok := m.files[filePath]
			if !ok {
				return nil, fs.ErrNotExist
			}
			return append([]byte(nil), data...), nil
		},
		WriteFunc: func(ctx context.Context, filePath string, data []byte) error {
			m.Writes++
			m.SetFile(filePath, data)
			return nil
		},
	}
}
