package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultStaticDirectory = "./static"

// projectFile is a parsed deployment definition with every $ref resolved.
type projectFile struct {
	path string
	doc  map[string]any
}

// loadProjectFile reads a YAML project file, inlines referenced route and
// handler files and checks the basic document shape.
func loadProjectFile(path string) (*projectFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("project file %s does not exist", path)
		}
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc == nil {
		return nil, errors.New("project file must be a mapping")
	}
	dir := filepath.Dir(abs)
	for _, key := range []string{"routes", "handlers"} {
		items, ok := doc[key].([]any)
		if !ok {
			return nil, fmt.Errorf("'%s' key in project file must be a list", key)
		}
		for i, item := range items {
			resolved, err := resolveRef(dir, item)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			items[i] = resolved
		}
	}
	if name, _ := doc["name"].(string); strings.TrimSpace(name) == "" {
		return nil, errors.New("'name' key in project file is required")
	}
	return &projectFile{path: abs, doc: doc}, nil
}

// resolveRef replaces a mapping holding only a $ref key with the referenced
// YAML document.
func resolveRef(dir string, item any) (any, error) {
	entry, ok := item.(map[string]any)
	if !ok || len(entry) != 1 {
		return item, nil
	}
	ref, ok := entry["$ref"].(string)
	if !ok {
		return item, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(ref)))
	if err != nil {
		return nil, fmt.Errorf("read reference %s: %w", ref, err)
	}
	var resolved any
	if err := yaml.Unmarshal(data, &resolved); err != nil {
		return nil, fmt.Errorf("parse reference %s: %w", ref, err)
	}
	return resolved, nil
}

// staticDir returns the static directory resolved against the project file.
func (p *projectFile) staticDir() string {
	dir, _ := p.doc["static_directory"].(string)
	if strings.TrimSpace(dir) == "" {
		dir = defaultStaticDirectory
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(filepath.Dir(p.path), filepath.FromSlash(dir))
}

// definition renders the document as the JSON body the API expects.
func (p *projectFile) definition() (json.RawMessage, error) {
	data, err := json.Marshal(p.doc)
	if err != nil {
		return nil, fmt.Errorf("encode definition: %w", err)
	}
	return data, nil
}
