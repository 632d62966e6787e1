package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/splax/backendless/internal/domain"
	"github.com/splax/backendless/internal/repository"
)

const deploymentColumns = `id, project_id, version, hash, has_static, published_at`

// CreateDeployment inserts a deployment with its handlers and routes as one unit.
func (r *Repository) CreateDeployment(ctx context.Context, deployment *domain.Deployment, handlers []domain.Handler, routes []domain.Route) error {
	if deployment == nil {
		return fmt.Errorf("deployment required")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const deploymentInsert = `INSERT INTO deployments (id, project_id, version, hash, has_static, published_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)`
	if _, err := tx.Exec(ctx, deploymentInsert,
		deployment.ID,
		deployment.ProjectID,
		deployment.Version,
		deployment.Fingerprint,
		deployment.PublishedAt,
	); err != nil {
		return classify(err)
	}

	const handlerInsert = `INSERT INTO handlers (id, deployment_id, name, query_parameters, headers, path_parameters, body, logic)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	const routeInsert = `INSERT INTO routes (id, deployment_id, path, methods, handler)
		VALUES ($1, $2, $3, $4, $5)`

	batch := &pgx.Batch{}
	for _, handler := range handlers {
		batch.Queue(handlerInsert,
			handler.ID,
			deployment.ID,
			handler.Name,
			listToNil(handler.QueryParameters),
			listToNil(handler.Headers),
			listToNil(handler.PathParameters),
			rawToNil(handler.Body),
			[]byte(handler.Logic),
		)
	}
	for _, route := range routes {
		batch.Queue(routeInsert,
			route.ID,
			deployment.ID,
			route.Path,
			route.Methods,
			route.Handler,
		)
	}
	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return classify(err)
			}
		}
		if err := br.Close(); err != nil {
			return classify(err)
		}
	}

	return tx.Commit(ctx)
}

// GetDeploymentByID fetches a deployment by identifier.
func (r *Repository) GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.Deployment, error) {
	const query = `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = $1`
	return scanDeployment(r.pool.QueryRow(ctx, query, deploymentID))
}

// FindDeploymentByFingerprint looks up the deployment of a project with the given hash.
func (r *Repository) FindDeploymentByFingerprint(ctx context.Context, projectID, fingerprint string) (*domain.Deployment, error) {
	const query = `SELECT ` + deploymentColumns + ` FROM deployments WHERE project_id = $1 AND hash = $2`
	return scanDeployment(r.pool.QueryRow(ctx, query, projectID, fingerprint))
}

// ListDeploymentsByProject returns every deployment of a project, newest first.
func (r *Repository) ListDeploymentsByProject(ctx context.Context, projectID string) ([]domain.Deployment, error) {
	const query = `SELECT ` + deploymentColumns + ` FROM deployments WHERE project_id = $1 ORDER BY published_at DESC`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	deployments := make([]domain.Deployment, 0)
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	return deployments, rows.Err()
}

// MarkDeploymentStatic flips has_static. The WHERE clause makes the update a
// no-op when the flag is already set, so only one caller observes true.
func (r *Repository) MarkDeploymentStatic(ctx context.Context, deploymentID string) (bool, error) {
	const query = `UPDATE deployments SET has_static = TRUE WHERE id = $1 AND has_static = FALSE`
	cmdTag, err := r.pool.Exec(ctx, query, deploymentID)
	if err != nil {
		return false, classify(err)
	}
	if cmdTag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.GetDeploymentByID(ctx, deploymentID); err != nil {
		return false, err
	}
	return false, nil
}

// DeleteDeployment removes a deployment record.
func (r *Repository) DeleteDeployment(ctx context.Context, deploymentID string) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM deployments WHERE id = $1`, deploymentID)
	if err != nil {
		return classify(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListHandlers returns the handlers of a deployment.
func (r *Repository) ListHandlers(ctx context.Context, deploymentID string) ([]domain.Handler, error) {
	const query = `SELECT id, deployment_id, name, query_parameters, headers, path_parameters, body, logic
		FROM handlers WHERE deployment_id = $1 ORDER BY name`
	rows, err := r.pool.Query(ctx, query, deploymentID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	handlers := make([]domain.Handler, 0)
	for rows.Next() {
		var h domain.Handler
		var body, logic []byte
		if err := rows.Scan(&h.ID, &h.DeploymentID, &h.Name, &h.QueryParameters, &h.Headers, &h.PathParameters, &body, &logic); err != nil {
			return nil, err
		}
		if body != nil {
			h.Body = body
		}
		h.Logic = logic
		handlers = append(handlers, h)
	}
	return handlers, rows.Err()
}

// DeleteHandler removes a handler. Deleting a missing handler is a no-op.
func (r *Repository) DeleteHandler(ctx context.Context, handlerID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM handlers WHERE id = $1`, handlerID)
	return classify(err)
}

// ListRoutes returns the routes of a deployment.
func (r *Repository) ListRoutes(ctx context.Context, deploymentID string) ([]domain.Route, error) {
	const query = `SELECT id, deployment_id, path, methods, handler
		FROM routes WHERE deployment_id = $1 ORDER BY path`
	rows, err := r.pool.Query(ctx, query, deploymentID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	routes := make([]domain.Route, 0)
	for rows.Next() {
		var route domain.Route
		if err := rows.Scan(&route.ID, &route.DeploymentID, &route.Path, &route.Methods, &route.Handler); err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

// DeleteRoute removes a route. Deleting a missing route is a no-op.
func (r *Repository) DeleteRoute(ctx context.Context, routeID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM routes WHERE id = $1`, routeID)
	return classify(err)
}

func scanDeployment(row pgx.Row) (*domain.Deployment, error) {
	var d domain.Deployment
	if err := row.Scan(&d.ID, &d.ProjectID, &d.Version, &d.Fingerprint, &d.HasStatic, &d.PublishedAt); err != nil {
		return nil, classify(err)
	}
	return &d, nil
}
