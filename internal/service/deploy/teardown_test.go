package deploy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/splax/backendless/internal/apierror"
	"github.com/splax/backendless/internal/domain"
	"github.com/splax/backendless/internal/notify"
)

func TestDeleteRemovesChildrenBeforeDeployment(t *testing.T) {
	env := newTestEnv(t)
	deployment := env.seedDeployment(t, true)

	if err := env.svc.Delete(context.Background(), env.ownerID, env.projectID, deployment.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	want := []string{"handler", "route", "deployment"}
	if len(env.store.ops) != len(want) {
		t.Fatalf("expected ops %v, got %v", want, env.store.ops)
	}
	for i := range want {
		if env.store.ops[i] != want[i] {
			t.Fatalf("expected ops %v, got %v", want, env.store.ops)
		}
	}
	if deployments, handlers, routes := env.store.count(); deployments+handlers+routes != 0 {
		t.Fatalf("expected everything removed, got %d/%d/%d", deployments, handlers, routes)
	}
	if len(env.publisher.messages) != 1 {
		t.Fatalf("expected one notification, got %d", len(env.publisher.messages))
	}
	if msg := env.publisher.messages[0]; msg.channel != notify.ChannelDelete || msg.message != env.projectID {
		t.Fatalf("unexpected notification %+v", msg)
	}

	_, err := env.svc.Get(context.Background(), env.ownerID, env.projectID, deployment.ID)
	if apierror.KindOf(err) != apierror.KindNotFound {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestDeleteRejectsOtherUsers(t *testing.T) {
	env := newTestEnv(t)
	deployment := env.seedDeployment(t, false)

	err := env.svc.Delete(context.Background(), uuid.NewString(), env.projectID, deployment.ID)
	if apierror.KindOf(err) != apierror.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if deployments, _, _ := env.store.count(); deployments != 1 {
		t.Fatal("expected deployment to survive")
	}
}

func TestDeleteAllForProjectTearsDownEveryDeployment(t *testing.T) {
	env := newTestEnv(t)
	env.seedDeployment(t, true)
	env.seedDeployment(t, false)

	if err := env.svc.DeleteAllForProject(context.Background(), env.projectID); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if deployments, handlers, routes := env.store.count(); deployments+handlers+routes != 0 {
		t.Fatalf("expected everything removed, got %d/%d/%d", deployments, handlers, routes)
	}
	if len(env.publisher.messages) != 2 {
		t.Fatalf("expected a delete notification per deployment, got %d", len(env.publisher.messages))
	}
}

func TestGetRequiresCompletedAssets(t *testing.T) {
	env := newTestEnv(t)
	pending := env.seedDeployment(t, false)
	_, err := env.svc.Get(context.Background(), env.ownerID, env.projectID, pending.ID)
	if apierror.KindOf(err) != apierror.KindNotComplete {
		t.Fatalf("expected not complete, got %v", err)
	}

	complete := env.seedDeployment(t, true)
	detail, err := env.svc.Get(context.Background(), env.ownerID, env.projectID, complete.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.ID != complete.ID || len(detail.Routes) != 1 || len(detail.Handlers) != 1 {
		t.Fatalf("unexpected detail %+v", detail)
	}
}

func TestGetHidesDeploymentsOfOtherProjects(t *testing.T) {
	env := newTestEnv(t)
	deployment := env.seedDeployment(t, true)
	env.store.mu.Lock()
	d := env.store.deployments[deployment.ID]
	d.ProjectID = uuid.NewString()
	env.store.deployments[deployment.ID] = d
	env.store.mu.Unlock()

	_, err := env.svc.Get(context.Background(), env.ownerID, env.projectID, deployment.ID)
	if apierror.KindOf(err) != apierror.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListReturnsProjectDeployments(t *testing.T) {
	env := newTestEnv(t)
	list, err := env.svc.List(context.Background(), env.ownerID, env.projectID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", list)
	}
	env.seedDeployment(t, false)
	list, _ = env.svc.List(context.Background(), env.ownerID, env.projectID)
	if len(list) != 1 {
		t.Fatalf("expected one deployment, got %d", len(list))
	}
}

func TestDeleteRetryAfterPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	deployment := env.seedDeployment(t, true)
	env.store.routeDeleteErr = errors.New("connection reset")

	err := env.svc.Delete(context.Background(), env.ownerID, env.projectID, deployment.ID)
	if apierror.KindOf(err) != apierror.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	deployments, handlers, routes := env.store.count()
	if deployments != 1 || handlers != 0 || routes != 1 {
		t.Fatalf("expected handlers removed and route kept, got %d/%d/%d", deployments, handlers, routes)
	}
	if len(env.publisher.messages) != 0 {
		t.Fatalf("expected no notification after a failed delete, got %d", len(env.publisher.messages))
	}

	if err := env.svc.Delete(context.Background(), env.ownerID, env.projectID, deployment.ID); err != nil {
		t.Fatalf("retry delete: %v", err)
	}
	if deployments, handlers, routes := env.store.count(); deployments+handlers+routes != 0 {
		t.Fatalf("expected everything removed, got %d/%d/%d", deployments, handlers, routes)
	}
	if len(env.publisher.messages) != 1 || env.publisher.messages[0].channel != notify.ChannelDelete {
		t.Fatalf("expected exactly one delete notification, got %+v", env.publisher.messages)
	}
}

func TestDeleteIgnoresChildrenAlreadyRemoved(t *testing.T) {
	env := newTestEnv(t)
	deployment := env.seedDeployment(t, true)
	env.store.staleRoutes = []domain.Route{{ID: uuid.NewString(), DeploymentID: deployment.ID, Path: "/gone"}}

	if err := env.svc.Delete(context.Background(), env.ownerID, env.projectID, deployment.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deployments, handlers, routes := env.store.count(); deployments+handlers+routes != 0 {
		t.Fatalf("expected everything removed, got %d/%d/%d", deployments, handlers, routes)
	}
}

func TestDeleteStopsWhenHandlerDeleteFails(t *testing.T) {
	env := newTestEnv(t)
	deployment := env.seedDeployment(t, true)
	env.store.handlerDeleteErr = errors.New("connection reset")

	err := env.svc.Delete(context.Background(), env.ownerID, env.projectID, deployment.ID)
	if apierror.KindOf(err) != apierror.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if deployments, handlers, routes := env.store.count(); deployments != 1 || handlers != 1 || routes != 1 {
		t.Fatalf("expected nothing removed, got %d/%d/%d", deployments, handlers, routes)
	}
}
