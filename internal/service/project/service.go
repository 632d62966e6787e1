package project

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/backendless/internal/apierror"
	"github.com/splax/backendless/internal/domain"
	"github.com/splax/backendless/internal/repository"
	"github.com/splax/backendless/pkg/config"
)

// DeploymentTeardown removes every deployment of a project.
type DeploymentTeardown interface {
	DeleteAllForProject(ctx context.Context, projectID string) error
}

// CreateInput encapsulates project creation attributes.
type CreateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateInput carries the editable project attributes.
type UpdateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Service orchestrates project management.
type Service struct {
	projects repository.ProjectRepository
	teardown DeploymentTeardown
	logger   *slog.Logger
	cfg      config.APIConfig
}

// New returns a project service.
func New(projects repository.ProjectRepository, teardown DeploymentTeardown, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{projects: projects, teardown: teardown, logger: logger, cfg: cfg}
}

var projectNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const (
	reasonInvalidName    = "project name may only contain letters, digits, '-' and '_'"
	reasonProjectMissing = "specified project does not exist"
	reasonForbidden      = "user lacks permission for resource"
)

// Create registers a new project owned by ownerID.
func (s Service) Create(ctx context.Context, ownerID string, input CreateInput) (*domain.Project, error) {
	name := strings.TrimSpace(input.Name)
	if !projectNamePattern.MatchString(name) {
		return nil, apierror.Validation(reasonInvalidName)
	}
	project := &domain.Project{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.projects.CreateProject(ctx, project); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apierror.Conflict("a project with this name already exists")
		}
		return nil, apierror.Internal("create project", err)
	}
	s.logger.Info("project created", "project_id", project.ID, "user_id", ownerID)
	return project, nil
}

// List returns projects owned by ownerID.
func (s Service) List(ctx context.Context, ownerID string) ([]domain.Project, error) {
	projects, err := s.projects.ListProjectsByOwner(ctx, ownerID)
	if err != nil {
		return nil, apierror.Internal("list projects", err)
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	return projects, nil
}

// Get returns project details when ownerID owns it.
func (s Service) Get(ctx context.Context, ownerID, projectID string) (*domain.Project, error) {
	projectID = strings.TrimSpace(projectID)
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
	if project.OwnerID != ownerID {
		return nil, apierror.Forbidden(reasonForbidden)
	}
	return project, nil
}

// Update renames or redescribes a project.
func (s Service) Update(ctx context.Context, ownerID, projectID string, input UpdateInput) (*domain.Project, error) {
	project, err := s.Get(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		if !projectNamePattern.MatchString(name) {
			return nil, apierror.Validation(reasonInvalidName)
		}
		project.Name = name
	}
	project.Description = strings.TrimSpace(input.Description)
	now := time.Now().UTC()
	project.UpdatedAt = &now
	if err := s.projects.UpdateProject(ctx, project); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apierror.Conflict("a project with this name already exists")
		}
		return nil, apierror.Internal("update project", err)
	}
	s.logger.Info("project updated", "project_id", project.ID)
	return project, nil
}

// Delete tears down the project's deployments and then the project itself.
func (s Service) Delete(ctx context.Context, ownerID, projectID string) error {
	project, err := s.Get(ctx, ownerID, projectID)
	if err != nil {
		return err
	}
	if s.teardown != nil {
		if err := s.teardown.DeleteAllForProject(ctx, project.ID); err != nil {
			return err
		}
	}
	if err := s.projects.DeleteProject(ctx, project.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apierror.NotFound(reasonProjectMissing)
		}
		return apierror.Internal("delete project", err)
	}
	s.logger.Info("project deleted", "project_id", project.ID)
	return nil
}
