package storage

import (
	"context"
	"errors"
	"testing"
)

func newTestBadgerAdapter(t *testing.T) *BadgerAdapter {
	t.Helper()
	opt := DefaultBadgerOptions(t.TempDir())
	opt.InMemory = true
	opt.Dir = ""
	b, err := OpenBadger(opt)
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBadgerAdapter_WriteThenRead(t *testing.T) {
	b := newTestBadgerAdapter(t)
	ctx := context.Background()
	if err := b.Write(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := b.Read(ctx, "k")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("Read = %q, want v1", got)
	}
}

func TestBadgerAdapter_ReadMissingReturnsNotFound(t *testing.T) {
	b := newTestBadgerAdapter(t)
	if _, err := b.Read(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestBadgerAdapter_Append(t *testing.T) {
	b := newTestBadgerAdapter(t)
	ctx := context.Background()
	_ = b.Write(ctx, "k", []byte("a"))
	_ = b.Append(ctx, "k", []byte("b"))
	got, _ := b.Read(ctx, "k")
	if string(got) != "ab" {
		t.Fatalf("Read = %q, want ab", got)
	}
}

func TestBadgerAdapter_AppendToMissingCreates(t *testing.T) {
	b := newTestBadgerAdapter(t)
	ctx := context.Background()
	_ = b.Append(ctx, "new", []byte("x"))
	got, err := b.Read(ctx, "new")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "x" {
		t.Fatalf("Read = %q, want x", got)
	}
}

func TestBadgerAdapter_Del(t *testing.T) {
	b := newTestBadgerAdapter(t)
	ctx := context.Background()
	_ = b.Write(ctx, "k", []byte("v"))
	if err := b.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := b.Read(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
