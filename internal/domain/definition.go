package domain

import "encoding/json"

// Definition is the deployment document submitted by clients. Field order is
// significant: it is re-encoded as is to compute the deployment fingerprint.
type Definition struct {
	Name            string              `json:"name"`
	Version         string              `json:"version"`
	StaticDirectory string              `json:"static_directory"`
	Routes          []RouteDefinition   `json:"routes"`
	Handlers        []HandlerDefinition `json:"handlers"`
}

// RouteDefinition is a route as submitted.
type RouteDefinition struct {
	Path    string   `json:"path"`
	Methods []string `json:"methods"`
	Handler string   `json:"handler"`
}

// HandlerDefinition is a handler as submitted. Logic is opaque to the API and
// interpreted by the runtime.
type HandlerDefinition struct {
	Name            string          `json:"name"`
	QueryParameters []string        `json:"query_parameters"`
	Headers         []string        `json:"headers"`
	PathParameters  []string        `json:"path_parameters"`
	Body            json.RawMessage `json:"body"`
	Logic           json.RawMessage `json:"logic"`
}
