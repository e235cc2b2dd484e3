package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestFileAdapter(t *testing.T) *FileAdapter {
	t.Helper()
	f, err := NewFileAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileAdapter: %v", err)
	}
	return f
}

func TestFileAdapter_WriteThenRead(t *testing.T) {
	f := newTestFileAdapter(t)
	ctx := context.Background()
	if err := f.Write(ctx, "a/b.dat", []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := f.Read(ctx, "a/b.dat")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Read = %q, want hello", got)
	}
}

func TestFileAdapter_ReadMissingReturnsNotFound(t *testing.T) {
	f := newTestFileAdapter(t)
	if _, err := f.Read(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFileAdapter_Append(t *testing.T) {
	f := newTestFileAdapter(t)
	ctx := context.Background()
	_ = f.Write(ctx, "k", []byte("a"))
	_ = f.Append(ctx, "k", []byte("b"))
	got, _ := f.Read(ctx, "k")
	if string(got) != "ab" {
		t.Fatalf("Read = %q, want ab", got)
	}
}

func TestFileAdapter_AtomicWriteReplacesContent(t *testing.T) {
	f := newTestFileAdapter(t)
	ctx := context.Background()
	_ = f.Write(ctx, "k", []byte("old"))
	if err := f.AtomicWrite(ctx, "k", []byte("new")); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	got, _ := f.Read(ctx, "k")
	if string(got) != "new" {
		t.Fatalf("Read = %q, want new", got)
	}
}

func TestFileAdapter_AtomicWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFileAdapter(dir)
	if err != nil {
		t.Fatalf("NewFileAdapter: %v", err)
	}
	if err := f.AtomicWrite(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, ".tmp-*"))
	if len(matches) != 0 {
		t.Fatalf("leftover temp files: %v", matches)
	}
}

func TestFileAdapter_Del(t *testing.T) {
	f := newTestFileAdapter(t)
	ctx := context.Background()
	_ = f.Write(ctx, "k", []byte("v"))
	if err := f.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := f.Read(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFileAdapter_DelMissingIsNotError(t *testing.T) {
	f := newTestFileAdapter(t)
	if err := f.Del(context.Background(), "missing"); err != nil {
		t.Fatalf("Del on missing key returned error: %v", err)
	}
}
