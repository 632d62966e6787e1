package domain

import (
	"encoding/json"
	"time"
)

// Deployment is one immutable, fingerprinted bundle of routes and handlers.
// HasStatic only ever moves from false to true.
type Deployment struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Version     string    `json:"version"`
	Fingerprint string    `json:"hash"`
	HasStatic   bool      `json:"has_static"`
	PublishedAt time.Time `json:"published_at"`
}

// Handler is a named request handling rule owned by a deployment.
// Empty parameter lists are stored as nil and Body is only kept when it is a
// JSON object.
type Handler struct {
	ID              string          `json:"id"`
	DeploymentID    string          `json:"deployment_id"`
	Name            string          `json:"name"`
	QueryParameters []string        `json:"query_parameters"`
	Headers         []string        `json:"headers"`
	PathParameters  []string        `json:"path_parameters"`
	Body            json.RawMessage `json:"body"`
	Logic           json.RawMessage `json:"logic"`
}

// Route binds a path and method set to a handler by name.
type Route struct {
	ID           string   `json:"id"`
	DeploymentID string   `json:"deployment_id"`
	Path         string   `json:"path"`
	Methods      []string `json:"methods"`
	Handler      string   `json:"handler"`
}

// DeploymentDetail flattens a deployment with its children for reads.
type DeploymentDetail struct {
	Deployment
	Routes   []Route   `json:"routes"`
	Handlers []Handler `json:"handlers"`
}
