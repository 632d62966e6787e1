package deploy

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/textproto"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/splax/backendless/internal/domain"
	"github.com/splax/backendless/internal/repository"
	"github.com/splax/backendless/internal/staging"
	"github.com/splax/backendless/pkg/config"
)

type fakeProjectRepo struct {
	projects map[string]domain.Project
}

func (f fakeProjectRepo) CreateProject(context.Context, *domain.Project) error { return nil }

func (f fakeProjectRepo) GetProjectByID(_ context.Context, id string) (*domain.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (f fakeProjectRepo) ListProjectsByOwner(context.Context, string) ([]domain.Project, error) {
	return nil, nil
}

func (f fakeProjectRepo) UpdateProject(context.Context, *domain.Project) error { return nil }
func (f fakeProjectRepo) DeleteProject(context.Context, string) error          { return nil }

// fakeStore is an in-memory DeploymentRepository.
type fakeStore struct {
	mu          sync.Mutex
	deployments map[string]domain.Deployment
	handlers    map[string]domain.Handler
	routes      map[string]domain.Route
	ops         []string

	// conflictWith is inserted in place of the next created deployment,
	// simulating a concurrent identical submission.
	conflictWith *domain.Deployment
	markErr      error
	beforeMark   func(*domain.Deployment)

	// handlerDeleteErr and routeDeleteErr fail the next matching delete once.
	handlerDeleteErr error
	routeDeleteErr   error
	// staleRoutes are listed but no longer stored, as if another teardown
	// removed them between the list and the delete.
	staleRoutes []domain.Route
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		deployments: map[string]domain.Deployment{},
		handlers:    map[string]domain.Handler{},
		routes:      map[string]domain.Route{},
	}
}

func (f *fakeStore) CreateDeployment(_ context.Context, d *domain.Deployment, handlers []domain.Handler, routes []domain.Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflictWith != nil {
		f.deployments[f.conflictWith.ID] = *f.conflictWith
		f.conflictWith = nil
		return fmt.Errorf("%w: deployments_project_hash_key", repository.ErrConflict)
	}
	for _, existing := range f.deployments {
		if existing.ProjectID == d.ProjectID && existing.Fingerprint == d.Fingerprint {
			return repository.ErrConflict
		}
	}
	f.deployments[d.ID] = *d
	for _, h := range handlers {
		f.handlers[h.ID] = h
	}
	for _, r := range routes {
		f.routes[r.ID] = r
	}
	return nil
}

func (f *fakeStore) GetDeploymentByID(_ context.Context, id string) (*domain.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (f *fakeStore) FindDeploymentByFingerprint(_ context.Context, projectID, fingerprint string) (*domain.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deployments {
		if d.ProjectID == projectID && d.Fingerprint == fingerprint {
			return &d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) ListDeploymentsByProject(_ context.Context, projectID string) ([]domain.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Deployment
	for _, d := range f.deployments {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) MarkDeploymentStatic(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return false, f.markErr
	}
	d, ok := f.deployments[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if f.beforeMark != nil {
		f.beforeMark(&d)
	}
	if d.HasStatic {
		return false, nil
	}
	d.HasStatic = true
	f.deployments[id] = d
	return true, nil
}

func (f *fakeStore) DeleteDeployment(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.deployments[id]; !ok {
		return repository.ErrNotFound
	}
	for _, h := range f.handlers {
		if h.DeploymentID == id {
			return errors.New("deployment still has handlers")
		}
	}
	for _, r := range f.routes {
		if r.DeploymentID == id {
			return errors.New("deployment still has routes")
		}
	}
	delete(f.deployments, id)
	f.ops = append(f.ops, "deployment")
	return nil
}

func (f *fakeStore) ListHandlers(_ context.Context, deploymentID string) ([]domain.Handler, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Handler
	for _, h := range f.handlers {
		if h.DeploymentID == deploymentID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) DeleteHandler(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.handlerDeleteErr; err != nil {
		f.handlerDeleteErr = nil
		return err
	}
	if _, ok := f.handlers[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.handlers, id)
	f.ops = append(f.ops, "handler")
	return nil
}

func (f *fakeStore) ListRoutes(_ context.Context, deploymentID string) ([]domain.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Route
	for _, r := range f.routes {
		if r.DeploymentID == deploymentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	for _, r := range f.staleRoutes {
		if r.DeploymentID == deploymentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteRoute(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.routeDeleteErr; err != nil {
		f.routeDeleteErr = nil
		return err
	}
	if _, ok := f.routes[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.routes, id)
	f.ops = append(f.ops, "route")
	return nil
}

func (f *fakeStore) count() (deployments, handlers, routes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deployments), len(f.handlers), len(f.routes)
}

type storedObject struct {
	data        []byte
	contentType string
}

// memoryBlobs records every Put.
type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string]storedObject
	failOn  string
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: map[string]storedObject{}}
}

func (m *memoryBlobs) Put(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && key == m.failOn {
		return errors.New("object store unavailable")
	}
	m.objects[key] = storedObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (m *memoryBlobs) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type publishedMessage struct {
	channel string
	message string
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
}

func (r *recordingPublisher) Publish(_ context.Context, channel, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, publishedMessage{channel: channel, message: message})
	return nil
}

type testEnv struct {
	svc       Service
	store     *fakeStore
	blobs     *memoryBlobs
	publisher *recordingPublisher
	ownerID   string
	projectID string
}

func newTestEnv(t *testing.T, opts ...func(*config.APIConfig)) *testEnv {
	t.Helper()
	area, err := staging.New(t.TempDir())
	if err != nil {
		t.Fatalf("staging: %v", err)
	}
	cfg := config.APIConfig{
		UploadMaxBytes:      1 << 20,
		EntryMaxBytes:       1 << 16,
		IngestWorkers:       2,
		IngestGlobalWorkers: 4,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	env := &testEnv{
		store:     newFakeStore(),
		blobs:     newMemoryBlobs(),
		publisher: &recordingPublisher{},
		ownerID:   uuid.NewString(),
		projectID: uuid.NewString(),
	}
	projects := fakeProjectRepo{projects: map[string]domain.Project{
		env.projectID: {ID: env.projectID, OwnerID: env.ownerID, Name: "shop"},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	env.svc = New(projects, env.store, env.blobs, env.publisher, area, logger, cfg)
	return env
}

// seedDeployment stores a deployment with one handler and one route.
func (e *testEnv) seedDeployment(t *testing.T, hasStatic bool) domain.Deployment {
	t.Helper()
	d := domain.Deployment{ID: uuid.NewString(), ProjectID: e.projectID, Version: "v1", Fingerprint: uuid.NewString(), HasStatic: hasStatic}
	handlers := []domain.Handler{{ID: uuid.NewString(), DeploymentID: d.ID, Name: "home", Logic: []byte(`{"return":"ok"}`)}}
	routes := []domain.Route{{ID: uuid.NewString(), DeploymentID: d.ID, Path: "/", Methods: []string{"GET"}, Handler: "home"}}
	if err := e.store.CreateDeployment(context.Background(), &d, handlers, routes); err != nil {
		t.Fatalf("seed deployment: %v", err)
	}
	return d
}

type zipFile struct {
	name string
	body string
}

func zipArchive(t *testing.T, files ...zipFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			t.Fatalf("zip create %s: %v", f.name, err)
		}
		if _, err := io.WriteString(w, f.body); err != nil {
			t.Fatalf("zip write %s: %v", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func multipartUpload(t *testing.T, field, contentType string, payload []byte) *multipart.Reader {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("note", "ignored"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="static.zip"`, field))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return multipart.NewReader(&buf, mw.Boundary())
}
