package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrTooLarge is returned when a staged payload exceeds its size limit.
var ErrTooLarge = errors.New("staged payload exceeds size limit")

// Area owns temporary files for in-flight uploads under a common root.
type Area struct {
	root string
}

// New ensures the staging root exists and is accessible.
func New(root string) (*Area, error) {
	if root == "" {
		return nil, fmt.Errorf("staging root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	return &Area{root: root}, nil
}

// Root returns the staging directory.
func (a *Area) Root() string { return a.root }

// Create opens a new temp file for the provided identifier.
func (a *Area) Create(identifier string) (*os.File, error) {
	if identifier == "" {
		return nil, fmt.Errorf("staging identifier cannot be empty")
	}
	if strings.ContainsAny(identifier, `/\`) {
		return nil, fmt.Errorf("staging identifier %q contains a path separator", identifier)
	}
	f, err := os.CreateTemp(a.root, identifier+"-*.upload")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	return f, nil
}

// Stage copies r into a new temp file, failing with ErrTooLarge once more than
// limit bytes arrive. The copy observes ctx between chunks. On success the file
// is rewound and the caller owns it; Remove must be called when done.
func (a *Area) Stage(ctx context.Context, identifier string, r io.Reader, limit int64) (*os.File, int64, error) {
	f, err := a.Create(identifier)
	if err != nil {
		return nil, 0, err
	}
	fail := func(err error) (*os.File, int64, error) {
		f.Close()
		_ = a.Remove(f.Name())
		return nil, 0, err
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.CopyBuffer(f, contextReader{ctx: ctx, r: src}, make([]byte, 32*1024))
	if err != nil {
		return fail(fmt.Errorf("stage upload: %w", err))
	}
	if limit > 0 && n > limit {
		return fail(ErrTooLarge)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fail(fmt.Errorf("rewind staged upload: %w", err))
	}
	return f, n, nil
}

// Remove deletes a staged file. Paths outside the staging root are refused.
func (a *Area) Remove(path string) error {
	if path == "" {
		return nil
	}
	rel, err := filepath.Rel(a.root, path)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove path outside staging root")
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove staged file: %w", err)
	}
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
