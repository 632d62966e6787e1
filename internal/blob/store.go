// Package blob persists static assets in an object store.
package blob

import (
	"context"
	"path"
	"strings"
)

// DefaultContentType is used when no better type can be inferred.
const DefaultContentType = "application/octet-stream"

// Store persists objects by key. Writing an existing key replaces its content.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Key scopes a sanitized relative path under a project namespace.
func Key(projectID, relPath string) string {
	return projectID + "/" + strings.TrimPrefix(path.Clean("/"+relPath), "/")
}
