package repository

import (
	"context"

	"github.com/splax/backendless/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// ProjectRepository persists project metadata.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error)
	ListProjectsByOwner(ctx context.Context, ownerID string) ([]domain.Project, error)
	UpdateProject(ctx context.Context, project *domain.Project) error
	DeleteProject(ctx context.Context, projectID string) error
}

// DeploymentRepository stores deployments together with their handlers and routes.
type DeploymentRepository interface {
	// CreateDeployment inserts the deployment and all children in one
	// transaction. A concurrent insert of the same (project, fingerprint)
	// surfaces as ErrConflict.
	CreateDeployment(ctx context.Context, deployment *domain.Deployment, handlers []domain.Handler, routes []domain.Route) error
	GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.Deployment, error)
	FindDeploymentByFingerprint(ctx context.Context, projectID, fingerprint string) (*domain.Deployment, error)
	ListDeploymentsByProject(ctx context.Context, projectID string) ([]domain.Deployment, error)
	// MarkDeploymentStatic sets has_static and reports whether this call
	// performed the transition.
	MarkDeploymentStatic(ctx context.Context, deploymentID string) (bool, error)
	DeleteDeployment(ctx context.Context, deploymentID string) error

	ListHandlers(ctx context.Context, deploymentID string) ([]domain.Handler, error)
	DeleteHandler(ctx context.Context, handlerID string) error
	ListRoutes(ctx context.Context, deploymentID string) ([]domain.Route, error)
	DeleteRoute(ctx context.Context, routeID string) error
}
