package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// zipDirectory archives every regular file under root with slash separated
// names relative to root.
func zipDirectory(root string) (*bytes.Buffer, int, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, 0, fmt.Errorf("static directory: %w", err)
	}
	if !info.IsDir() {
		return nil, 0, fmt.Errorf("static directory %s is not a directory", root)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	count := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: filepath.ToSlash(rel), Method: zip.Deflate})
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(w, f); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("archive %s: %w", root, err)
	}
	if err := zw.Close(); err != nil {
		return nil, 0, err
	}
	return &buf, count, nil
}
