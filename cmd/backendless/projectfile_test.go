package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadProjectFileResolvesReferences(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "handlers", "home.yaml"), "name: home\nlogic:\n  return: hello\n")
	writeFile(t, filepath.Join(dir, "project.yaml"), `name: shop
version: "1"
routes:
  - path: /
    methods: [GET]
    handler: home
handlers:
  - $ref: handlers/home.yaml
`)

	project, err := loadProjectFile(filepath.Join(dir, "project.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	raw, err := project.definition()
	if err != nil {
		t.Fatalf("definition: %v", err)
	}
	var def struct {
		Name     string `json:"name"`
		Handlers []struct {
			Name  string         `json:"name"`
			Logic map[string]any `json:"logic"`
		} `json:"handlers"`
	}
	if err := json.Unmarshal(raw, &def); err != nil {
		t.Fatalf("decode definition: %v", err)
	}
	if def.Name != "shop" || len(def.Handlers) != 1 || def.Handlers[0].Name != "home" {
		t.Fatalf("unexpected definition %s", raw)
	}
	if def.Handlers[0].Logic["return"] != "hello" {
		t.Fatalf("reference body not inlined: %s", raw)
	}
	if got, want := project.staticDir(), filepath.Join(dir, "static"); got != want {
		t.Fatalf("static dir %q, want %q", got, want)
	}
}

func TestLoadProjectFileRejectsMissingLists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	writeFile(t, path, "name: shop\nroutes: []\nhandlers: nope\n")

	_, err := loadProjectFile(path)
	if err == nil || !strings.Contains(err.Error(), "'handlers'") {
		t.Fatalf("expected handlers list error, got %v", err)
	}
}

func TestLoadProjectFileRequiresName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	writeFile(t, path, "routes: []\nhandlers: []\n")

	if _, err := loadProjectFile(path); err == nil {
		t.Fatal("expected missing name error")
	}
}

func TestZipDirectoryUsesRelativeNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "index.html"), "<h1>hi</h1>")
	writeFile(t, filepath.Join(dir, "css", "site.css"), "body{}")

	buf, count, err := zipDirectory(dir)
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 files, got %d", count)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	if strings.Join(names, ",") != "css/site.css,index.html" {
		t.Fatalf("unexpected entries %v", names)
	}
}

func TestZipDirectoryRequiresDirectory(t *testing.T) {
	if _, _, err := zipDirectory(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
