package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/splax/backendless/internal/domain"
	"github.com/splax/backendless/internal/service/auth"
	"github.com/splax/backendless/internal/service/project"
	"github.com/splax/backendless/internal/ws"
)

// decodeJSON reads a bounded JSON body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, req.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

type sessionResponse struct {
	User   *domain.User   `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	user, tokens, err := r.auth.Signup(req.Context(), payload.Email, payload.Username, payload.Password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{User: user, Tokens: tokens})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	user, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: user, Tokens: tokens})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	token, _ := bearerToken(req.Header.Get("Authorization"))
	user, _, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (r *Router) handleProjects(w http.ResponseWriter, req *http.Request) {
	userID, ok := r.callerID(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		projects, err := r.project.List(req.Context(), userID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, projects)
	case http.MethodPost:
		var payload project.CreateInput
		if !decodeJSON(w, req, &payload) {
			return
		}
		proj, err := r.project.Create(req.Context(), userID, payload)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, proj)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleProject(w http.ResponseWriter, req *http.Request, projectID string) {
	userID, ok := r.callerID(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		proj, err := r.project.Get(req.Context(), userID, projectID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, proj)
	case http.MethodPut:
		var payload project.UpdateInput
		if !decodeJSON(w, req, &payload) {
			return
		}
		proj, err := r.project.Update(req.Context(), userID, projectID, payload)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, proj)
	case http.MethodDelete:
		if err := r.project.Delete(req.Context(), userID, projectID); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": projectID})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleDeployments(w http.ResponseWriter, req *http.Request, projectID string) {
	userID, ok := r.callerID(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		deployments, err := r.deploy.List(req.Context(), userID, projectID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, deployments)
	case http.MethodPost:
		var def domain.Definition
		if !decodeJSON(w, req, &def) {
			return
		}
		deployment, created, err := r.deploy.Create(req.Context(), userID, projectID, def)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]string{"id": deployment.ID})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleDeployment(w http.ResponseWriter, req *http.Request, projectID, deploymentID string) {
	userID, ok := r.callerID(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		detail, err := r.deploy.Get(req.Context(), userID, projectID, deploymentID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case http.MethodPut:
		// a non-multipart body is reported after the deployment checks
		form, _ := req.MultipartReader()
		result, err := r.deploy.Ingest(req.Context(), userID, projectID, deploymentID, form)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodDelete:
		if err := r.deploy.Delete(req.Context(), userID, projectID, deploymentID); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": deploymentID})
	default:
		r.methodNotAllowed(w)
	}
}

// handleEventsWS streams lifecycle events of one project to its owner.
func (r *Router) handleEventsWS(w http.ResponseWriter, req *http.Request) {
	userID, ok := r.callerID(w, req)
	if !ok {
		return
	}
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	projectID := req.URL.Query().Get("project_id")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "project_id query parameter required")
		return
	}
	if _, err := r.project.Get(req.Context(), userID, projectID); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(projectID, client)
	r.metrics.eventClients.Inc()
	go func() {
		defer func() {
			r.hub.Unregister(projectID, client)
			client.Close()
			r.metrics.eventClients.Dec()
		}()
		client.Wait()
	}()
}

// checkWebsocketOrigin allows non-browser clients and configured origins.
func (r *Router) checkWebsocketOrigin(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if r.originAllowed(origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, req.Host)
}
