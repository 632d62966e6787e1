package deploy

import (
	"context"
	"errors"

	"github.com/splax/backendless/internal/apierror"
	"github.com/splax/backendless/internal/domain"
	"github.com/splax/backendless/internal/notify"
	"github.com/splax/backendless/internal/repository"
)

// Delete removes a deployment owned by userID after all of its handlers and routes.
func (s Service) Delete(ctx context.Context, userID, projectID, deploymentID string) error {
	deployment, err := s.ownedDeployment(ctx, userID, projectID, deploymentID)
	if err != nil {
		return err
	}
	return s.teardown(ctx, deployment)
}

// DeleteAllForProject tears down every deployment of a project. Ownership must
// already have been checked by the caller.
func (s Service) DeleteAllForProject(ctx context.Context, projectID string) error {
	deployments, err := s.deployments.ListDeploymentsByProject(ctx, projectID)
	if err != nil {
		return apierror.Internal("list deployments for teardown", err)
	}
	for i := range deployments {
		if err := s.teardown(ctx, &deployments[i]); err != nil {
			return err
		}
	}
	return nil
}

// teardown deletes handlers, then routes, then the deployment row. A retry
// after a partial failure skips children that are already gone.
func (s Service) teardown(ctx context.Context, deployment *domain.Deployment) error {
	handlers, err := s.deployments.ListHandlers(ctx, deployment.ID)
	if err != nil {
		return apierror.Internal("list handlers for teardown", err)
	}
	for _, h := range handlers {
		if err := s.deployments.DeleteHandler(ctx, h.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apierror.Internal("delete handler", err)
		}
	}

	routes, err := s.deployments.ListRoutes(ctx, deployment.ID)
	if err != nil {
		return apierror.Internal("list routes for teardown", err)
	}
	for _, r := range routes {
		if err := s.deployments.DeleteRoute(ctx, r.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apierror.Internal("delete route", err)
		}
	}

	if err := s.deployments.DeleteDeployment(ctx, deployment.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apierror.NotFound(reasonDeploymentMissing)
		}
		return apierror.Internal("delete deployment", err)
	}

	s.logger.Info("deployment deleted",
		"project_id", deployment.ProjectID,
		"deployment_id", deployment.ID,
		"handlers", len(handlers),
		"routes", len(routes),
	)
	s.notify(ctx, notify.ChannelDelete, deployment.ProjectID)
	return nil
}
