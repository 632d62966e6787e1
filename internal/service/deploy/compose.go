package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/backendless/internal/apierror"
	"github.com/splax/backendless/internal/domain"
	"github.com/splax/backendless/internal/repository"
)

// Create stores def as a new deployment of projectID. When the project already
// has a deployment with the same fingerprint that deployment is returned and
// created is false.
func (s Service) Create(ctx context.Context, userID, projectID string, def domain.Definition) (deployment *domain.Deployment, created bool, err error) {
	if _, err := s.ownedProject(ctx, userID, projectID); err != nil {
		return nil, false, err
	}
	if err := validateDefinition(def); err != nil {
		return nil, false, err
	}
	fingerprint, err := Fingerprint(def)
	if err != nil {
		return nil, false, apierror.Internal("fingerprint deployment", err)
	}

	existing, err := s.deployments.FindDeploymentByFingerprint(ctx, projectID, fingerprint)
	switch {
	case err == nil:
		s.logger.Info("deployment already exists", "project_id", projectID, "deployment_id", existing.ID, "hash", fingerprint)
		return existing, false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, apierror.Internal("lookup deployment fingerprint", err)
	}

	deployment = &domain.Deployment{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Version:     def.Version,
		Fingerprint: fingerprint,
		PublishedAt: time.Now().UTC(),
	}
	handlers := make([]domain.Handler, 0, len(def.Handlers))
	for _, h := range def.Handlers {
		handlers = append(handlers, normalizeHandler(deployment.ID, h))
	}
	routes := make([]domain.Route, 0, len(def.Routes))
	for _, r := range def.Routes {
		routes = append(routes, domain.Route{
			ID:           uuid.NewString(),
			DeploymentID: deployment.ID,
			Path:         r.Path,
			Methods:      r.Methods,
			Handler:      r.Handler,
		})
	}

	if err := s.deployments.CreateDeployment(ctx, deployment, handlers, routes); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, false, apierror.Internal("create deployment", err)
		}
		// lost a race against an identical submission
		winner, lookupErr := s.deployments.FindDeploymentByFingerprint(ctx, projectID, fingerprint)
		if lookupErr != nil {
			return nil, false, apierror.Internal("lookup deployment after conflict", errors.Join(err, lookupErr))
		}
		s.logger.Info("deployment created concurrently", "project_id", projectID, "deployment_id", winner.ID, "hash", fingerprint)
		return winner, false, nil
	}

	s.logger.Info("deployment created",
		"project_id", projectID,
		"deployment_id", deployment.ID,
		"hash", fingerprint,
		"handlers", len(handlers),
		"routes", len(routes),
	)
	return deployment, true, nil
}

func validateDefinition(def domain.Definition) error {
	for i, h := range def.Handlers {
		if strings.TrimSpace(h.Name) == "" {
			return apierror.Validation(fmt.Sprintf("handlers[%d]: name is required", i))
		}
		if isJSONNull(h.Logic) {
			return apierror.Validation(fmt.Sprintf("handlers[%d]: logic is required", i))
		}
	}
	for i, r := range def.Routes {
		if strings.TrimSpace(r.Path) == "" {
			return apierror.Validation(fmt.Sprintf("routes[%d]: path is required", i))
		}
		if strings.TrimSpace(r.Handler) == "" {
			return apierror.Validation(fmt.Sprintf("routes[%d]: handler is required", i))
		}
		if len(r.Methods) == 0 {
			return apierror.Validation(fmt.Sprintf("routes[%d]: at least one method is required", i))
		}
	}
	return nil
}

// normalizeHandler maps empty parameter lists to nil and drops a body that is
// not a JSON object.
func normalizeHandler(deploymentID string, h domain.HandlerDefinition) domain.Handler {
	handler := domain.Handler{
		ID:              uuid.NewString(),
		DeploymentID:    deploymentID,
		Name:            h.Name,
		QueryParameters: nilIfEmpty(h.QueryParameters),
		Headers:         nilIfEmpty(h.Headers),
		PathParameters:  nilIfEmpty(h.PathParameters),
		Logic:           h.Logic,
	}
	if isJSONObject(h.Body) {
		handler.Body = h.Body
	}
	return handler
}

func nilIfEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return values
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func isJSONNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
