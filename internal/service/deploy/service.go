package deploy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/splax/backendless/internal/apierror"
	"github.com/splax/backendless/internal/blob"
	"github.com/splax/backendless/internal/domain"
	"github.com/splax/backendless/internal/notify"
	"github.com/splax/backendless/internal/repository"
	"github.com/splax/backendless/internal/staging"
	"github.com/splax/backendless/pkg/config"
)

const (
	defaultIngestWorkers       = 4
	defaultIngestGlobalWorkers = 16
)

// Client facing reasons.
const (
	reasonForbidden          = "user lacks permission for resource"
	reasonProjectMissing     = "specified project does not exist"
	reasonDeploymentMissing  = "specified deployment does not exist"
	reasonNotComplete        = "deployment is not yet complete"
	reasonAlreadyHasStatic   = "static files already registered for deployment"
	reasonMissingStaticField = "missing required field: " + StaticField
	reasonNotZip             = "uploaded file must be a zip archive"
	reasonInvalidZip         = "invalid zip archive format"
	reasonUploadTooLarge     = "uploaded archive exceeds size limit"
)

// Service composes, ingests, reads and tears down deployments.
type Service struct {
	projects    repository.ProjectRepository
	deployments repository.DeploymentRepository
	blobs       blob.Store
	publisher   notify.Publisher
	staging     *staging.Area
	slots       *semaphore.Weighted
	logger      *slog.Logger
	cfg         config.APIConfig
}

// New returns a deployment service. The global ingest semaphore is shared by
// every upload handled through the returned value.
func New(projects repository.ProjectRepository, deployments repository.DeploymentRepository, blobs blob.Store, publisher notify.Publisher, area *staging.Area, logger *slog.Logger, cfg config.APIConfig) Service {
	if cfg.IngestWorkers <= 0 {
		cfg.IngestWorkers = defaultIngestWorkers
	}
	if cfg.IngestGlobalWorkers <= 0 {
		cfg.IngestGlobalWorkers = defaultIngestGlobalWorkers
	}
	return Service{
		projects:    projects,
		deployments: deployments,
		blobs:       blobs,
		publisher:   publisher,
		staging:     area,
		slots:       semaphore.NewWeighted(int64(cfg.IngestGlobalWorkers)),
		logger:      logger,
		cfg:         cfg,
	}
}

// List returns every deployment of a project owned by userID.
func (s Service) List(ctx context.Context, userID, projectID string) ([]domain.Deployment, error) {
	if _, err := s.ownedProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	deployments, err := s.deployments.ListDeploymentsByProject(ctx, projectID)
	if err != nil {
		return nil, apierror.Internal("list deployments", err)
	}
	if deployments == nil {
		deployments = []domain.Deployment{}
	}
	return deployments, nil
}

// Get returns a complete deployment together with its routes and handlers.
func (s Service) Get(ctx context.Context, userID, projectID, deploymentID string) (*domain.DeploymentDetail, error) {
	deployment, err := s.ownedDeployment(ctx, userID, projectID, deploymentID)
	if err != nil {
		return nil, err
	}
	if !deployment.HasStatic {
		return nil, apierror.NotComplete(reasonNotComplete)
	}
	handlers, err := s.deployments.ListHandlers(ctx, deployment.ID)
	if err != nil {
		return nil, apierror.Internal("list handlers", err)
	}
	routes, err := s.deployments.ListRoutes(ctx, deployment.ID)
	if err != nil {
		return nil, apierror.Internal("list routes", err)
	}
	if handlers == nil {
		handlers = []domain.Handler{}
	}
	if routes == nil {
		routes = []domain.Route{}
	}
	return &domain.DeploymentDetail{Deployment: *deployment, Routes: routes, Handlers: handlers}, nil
}

func (s Service) ownedProject(ctx context.Context, userID, projectID string) (*domain.Project, error) {
	if _, err := uuid.Parse(projectID); err != nil {
		return nil, apierror.NotFound(reasonProjectMissing)
	}
	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apierror.NotFound(reasonProjectMissing)
		}
		return nil, apierror.Internal("load project", err)
	}
	if project.OwnerID != userID {
		return nil, apierror.Forbidden(reasonForbidden)
	}
	return project, nil
}

func (s Service) ownedDeployment(ctx context.Context, userID, projectID, deploymentID string) (*domain.Deployment, error) {
	if _, err := s.ownedProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(deploymentID); err != nil {
		return nil, apierror.NotFound(reasonDeploymentMissing)
	}
	deployment, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apierror.NotFound(reasonDeploymentMissing)
		}
		return nil, apierror.Internal("load deployment", err)
	}
	if deployment.ProjectID != projectID {
		return nil, apierror.NotFound(reasonDeploymentMissing)
	}
	return deployment, nil
}

// notify publishes a lifecycle event. Failures are logged and never returned:
// the state change it reports has already been committed.
func (s Service) notify(ctx context.Context, channel, projectID string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), channel, projectID); err != nil {
		s.logger.Error("lifecycle notification failed", "channel", channel, "project_id", projectID, "error", err)
		return
	}
	s.logger.Debug("lifecycle notification sent", "channel", channel, "project_id", projectID)
}
