package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateDeploymentReportsDeduplication(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects/p1/deployments" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization %q", got)
		}
		calls++
		status := http.StatusCreated
		if calls > 1 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":"d1"}}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	def := json.RawMessage(`{"name":"v1"}`)
	id, created, err := c.CreateDeployment(context.Background(), "tok", "p1", def)
	if err != nil || id != "d1" || !created {
		t.Fatalf("first create: id=%q created=%v err=%v", id, created, err)
	}
	id, created, err = c.CreateDeployment(context.Background(), "tok", "p1", def)
	if err != nil || id != "d1" || created {
		t.Fatalf("second create: id=%q created=%v err=%v", id, created, err)
	}
}

func TestFailureEnvelopeBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"success":false,"reason":"user lacks permission for resource"}`)
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.ListProjects(context.Background(), "tok")
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Reason != "user lacks permission for resource" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestUploadStaticSendsArchiveField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/projects/p1/deployments/d1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		mr, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart reader: %v", err)
			return
		}
		part, err := mr.NextPart()
		if err != nil {
			t.Errorf("next part: %v", err)
			return
		}
		if part.FormName() != StaticField || part.Header.Get("Content-Type") != "application/zip" {
			t.Errorf("unexpected part %q %q", part.FormName(), part.Header.Get("Content-Type"))
		}
		data, _ := io.ReadAll(part)
		if string(data) != "PK-archive" {
			t.Errorf("unexpected payload %q", data)
		}
		_, _ = io.WriteString(w, `{"success":true,"data":{"uploaded":3,"rejected":[]}}`)
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	result, err := c.UploadStatic(context.Background(), "tok", "p1", "d1", strings.NewReader("PK-archive"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if result.Uploaded != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestNewAddsSchemeAndTrimsSlash(t *testing.T) {
	c, err := New("api.example.com/")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.baseURL != "http://api.example.com" {
		t.Fatalf("unexpected base url %q", c.baseURL)
	}
}
