package source

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"testing"

	"hexwin/internal/databricks"
	"hexwin/internal/filecache"
)

func newWorkspace(t *testing.T, content []byte) (*databricks.InMemoryWorkspace, Options) {
	t.Helper()
	ws := databricks.NewInMemoryWorkspace()
	ws.SetFile("/Users/test/blob.bin", content)
	cache, err := filecache.NewDiskCache(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	return ws, Options{Workspace: ws.API(), Cache: cache, WindowSize: 1024}
}

func TestWorkspaceRead(t *testing.T) {
	content := patterned(5000)
	_, opts := newWorkspace(t, content)

	src, err := Open("ws:/Users/test/blob.bin", false, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	if src.Len() != 5000 || !src.ReadOnly() {
		t.Fatalf("Len = %d, ReadOnly = %v", src.Len(), src.ReadOnly())
	}
	got, err := Snapshot(src, 4000, 100)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if !bytes.Equal(got, content[4000:4100]) {
		t.Error("remote bytes differ")
	}
}

func TestWorkspaceExportsOnce(t *testing.T) {
	_, opts := newWorkspace(t, patterned(5000))
	exports := 0
	api := opts.Workspace.(*databricks.FakeWorkspaceAPI)
	readAll := api.ReadAllFunc
	api.ReadAllFunc = func(ctx context.Context, p string) ([]byte, error) {
		exports++
		return readAll(ctx, p)
	}

	src, err := OpenWorkspace("/Users/test/blob.bin", false, opts)
	if err != nil {
		t.Fatalf("OpenWorkspace failed: %v", err)
	}
	defer src.Close()
	for _, pos := range []uint64{0, 4500, 2000, 100} {
		if _, err := src.Read(pos, 64); err != nil {
			t.Fatalf("Read(%d) failed: %v", pos, err)
		}
	}
	if exports != 1 {
		t.Errorf("exports = %d, want 1", exports)
	}
}

func TestWorkspaceWriteUploads(t *testing.T) {
	for _, withCache := range []bool{true, false} {
		name := "memory"
		if withCache {
			name = "disk cache"
		}
		t.Run(name, func(t *testing.T) {
			ws, opts := newWorkspace(t, make([]byte, 3000))
			if !withCache {
				opts.Cache = nil
			}
			src, err := OpenWorkspace("/Users/test/blob.bin", true, opts)
			if err != nil {
				t.Fatalf("OpenWorkspace failed: %v", err)
			}
			if _, err := Write(src, 2500, []byte("Petter")); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if err := src.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			remote, _ := ws.GetFile("/Users/test/blob.bin")
			if len(remote) != 3000 || string(remote[2500:2506]) != "Petter" {
				t.Errorf("remote object not patched: len=%d", len(remote))
			}
			if ws.Writes != 1 {
				t.Errorf("uploads = %d, want 1", ws.Writes)
			}

			again, err := OpenWorkspace("/Users/test/blob.bin", false, opts)
			if err != nil {
				t.Fatalf("reopen failed: %v", err)
			}
			defer again.Close()
			got, _ := Snapshot(again, 2500, 6)
			if string(got) != "Petter" {
				t.Errorf("round trip = %q", got)
			}
		})
	}
}

func TestWorkspaceMissing(t *testing.T) {
	_, opts := newWorkspace(t, []byte("x"))
	if _, err := Open("ws:/Users/test/nope", false, opts); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestWorkspaceEmpty(t *testing.T) {
	_, opts := newWorkspace(t, nil)
	if _, err := Open("ws:/Users/test/blob.bin", false, opts); !errors.Is(err, ErrEmptySource) {
		t.Errorf("err = %v, want ErrEmptySource", err)
	}
}

func TestWorkspaceNotConfigured(t *testing.T) {
	if _, err := Open("ws:/x", false, Options{}); err == nil {
		t.Error("expected error without a workspace client")
	}
}

func TestWorkspaceUploadFailureKeepsModified(t *testing.T) {
	_, opts := newWorkspace(t, make([]byte, 100))
	api := opts.Workspace.(*databricks.FakeWorkspaceAPI)
	api.WriteFunc = func(ctx context.Context, p string, data []byte) error {
		return errors.New("quota exceeded")
	}

	src, err := OpenWorkspace("/Users/test/blob.bin", true, opts)
	if err != nil {
		t.Fatalf("OpenWorkspace failed: %v", err)
	}
	Write(src, 0, []byte{1})
	if err := src.Flush(); err == nil {
		t.Fatal("expected flush to fail")
	}
	if !src.Modified() {
		t.Error("failed upload cleared modified")
	}
}
