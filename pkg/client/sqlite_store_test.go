package client

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteKV(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "visivo.db")

	kv, err := OpenSQLiteKV(path)
	if err != nil {
		t.Fatalf("OpenSQLiteKV: %v", err)
	}

	var journal string
	if err := kv.db.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&journal); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if journal != "wal" {
		t.Fatalf("journal_mode = %q, want wal", journal)
	}
	var busy int
	if err := kv.db.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&busy); err != nil {
		t.Fatalf("busy_timeout: %v", err)
	}
	if busy != 5000 {
		t.Fatalf("busy_timeout = %d, want 5000", busy)
	}

	if _, ok, err := kv.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := kv.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, ok, err := kv.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v2" {
		t.Fatalf("Get = %q ok=%v err=%v", got, ok, err)
	}
	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "k"); ok {
		t.Fatal("key should be deleted")
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSQLiteKVSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "visivo.db")

	kv, err := OpenSQLiteKV(path)
	if err != nil {
		t.Fatalf("OpenSQLiteKV: %v", err)
	}
	conv, _ := NewConversation(ctx, kv)
	_ = conv.Append(ctx, NewUserMessage("persist me", nil))
	_ = kv.Close()

	kv, err = OpenSQLiteKV(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer kv.Close()

	conv, err = NewConversation(ctx, kv)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	msgs := conv.Messages()
	if len(msgs) != 1 || msgs[0].(*UserMessage).Text != "persist me" {
		t.Fatalf("messages = %+v", msgs)
	}
}
