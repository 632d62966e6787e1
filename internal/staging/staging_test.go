package staging

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStageCopiesAndRewinds(t *testing.T) {
	area, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new area: %v", err)
	}
	f, n, err := area.Stage(context.Background(), "dep-1", strings.NewReader("archive-bytes"), 64)
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	defer area.Remove(f.Name())
	defer f.Close()

	if n != int64(len("archive-bytes")) {
		t.Fatalf("expected %d bytes staged, got %d", len("archive-bytes"), n)
	}
	body, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read staged: %v", err)
	}
	if string(body) != "archive-bytes" {
		t.Fatalf("unexpected staged content %q", body)
	}
}

func TestStageRejectsOversizedPayload(t *testing.T) {
	root := t.TempDir()
	area, err := New(root)
	if err != nil {
		t.Fatalf("new area: %v", err)
	}
	_, _, err = area.Stage(context.Background(), "dep-1", strings.NewReader(strings.Repeat("x", 100)), 10)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("expected oversized upload to be cleaned up, found %d files", len(entries))
	}
}

func TestStageStopsOnCancelledContext(t *testing.T) {
	area, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new area: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := area.Stage(ctx, "dep-1", strings.NewReader("data"), 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRemoveRefusesPathsOutsideRoot(t *testing.T) {
	area, err := New(filepath.Join(t.TempDir(), "staging"))
	if err != nil {
		t.Fatalf("new area: %v", err)
	}
	if err := area.Remove(filepath.Join(area.Root(), "..", "other")); err == nil {
		t.Fatal("expected removal outside root to be refused")
	}
	if err := area.Remove(area.Root()); err == nil {
		t.Fatal("expected removal of the root itself to be refused")
	}
}

func TestCreateRejectsSeparators(t *testing.T) {
	area, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new area: %v", err)
	}
	if _, err := area.Create("../escape"); err == nil {
		t.Fatal("expected identifier with separator to be rejected")
	}
}
