package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arijanluiken/tradescript/internal/engine"
	"github.com/arijanluiken/tradescript/internal/executor"
	"github.com/arijanluiken/tradescript/pkg/database"
)

const maxBodyBytes = 1 << 20

// Response helpers
func (a *APIActor) writeJSON(w http.ResponseWriter, data interface{}) {
	a.writeJSONStatus(w, http.StatusOK, data)
}

func (a *APIActor) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Debug().Err(err).Msg("Failed to write response")
	}
}

func (a *APIActor) writeError(w http.ResponseWriter, message string, code int) {
	a.writeJSONStatus(w, code, map[string]string{"error": message})
}

func (a *APIActor) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	a.writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
	return false
}

func (a *APIActor) requireStore(w http.ResponseWriter) bool {
	if a.store == nil {
		a.writeError(w, "script store not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// responseCode maps an execution response onto an HTTP status
func responseCode(resp *engine.Response) int {
	if resp.OK() {
		return http.StatusOK
	}
	for _, d := range resp.Errors {
		switch d.Kind {
		case engine.KindRequest, engine.KindData:
			return http.StatusBadRequest
		case engine.KindInternal:
			return http.StatusInternalServerError
		}
	}
	return http.StatusUnprocessableEntity
}

// Basic handlers
func (a *APIActor) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	})
}

func (a *APIActor) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	routes := []struct{ path, method, summary string }{
		{"/health", "get", "Health check"},
		{"/execute", "post", "Execute a script against market data"},
		{"/check", "post", "Report syntax errors without running a script"},
		{"/builtins", "get", "List the enabled builtin functions"},
		{"/executors", "get", "Executor pool status"},
		{"/executors/logs", "get", "Recent executor log entries"},
		{"/scripts", "get", "List saved scripts"},
		{"/scripts", "post", "Save a script"},
		{"/scripts/{name}", "get", "Get a saved script"},
		{"/scripts/{name}", "put", "Update a saved script"},
		{"/scripts/{name}", "delete", "Delete a saved script"},
		{"/scripts/{name}/run", "post", "Run a saved script"},
		{"/scripts/{name}/runs", "get", "Run history of a script"},
		{"/runs", "get", "Run history"},
	}

	paths := map[string]map[string]interface{}{}
	for _, route := range routes {
		if paths[route.path] == nil {
			paths[route.path] = map[string]interface{}{}
		}
		paths[route.path][route.method] = map[string]interface{}{
			"summary": route.summary,
			"responses": map[string]interface{}{
				"200": map[string]string{"description": "OK"},
			},
		}
	}

	a.writeJSON(w, map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "tradescript API",
			"version":     "1.0.0",
			"description": "API for running trading scripts",
		},
		"servers": []map[string]interface{}{
			{
				"url":         fmt.Sprintf("http://localhost:%d/api/v1", a.config.API.Port),
				"description": "Local server",
			},
		},
		"paths": paths,
	})
}

func (a *APIActor) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if !a.decodeBody(w, r, &req, false) {
		return
	}
	a.execute(w, r, &req)
}

func (a *APIActor) execute(w http.ResponseWriter, r *http.Request, req *engine.Request) {
	resp, err := a.executor.Execute(r.Context(), req)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to dispatch execution")
		code := http.StatusInternalServerError
		if errors.Is(err, executor.ErrNoExecutors) {
			code = http.StatusServiceUnavailable
		}
		a.writeError(w, err.Error(), code)
		return
	}
	a.writeJSONStatus(w, responseCode(resp), resp)
}

func (a *APIActor) handleCheck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source string `json:"source"`
	}
	if !a.decodeBody(w, r, &body, false) {
		return
	}

	diags := a.engine.Check(body.Source)
	if diags == nil {
		diags = []engine.Diagnostic{}
	}
	a.writeJSON(w, map[string]interface{}{
		"valid":  len(diags) == 0,
		"errors": diags,
	})
}

func (a *APIActor) handleGetBuiltins(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, map[string]interface{}{"builtins": a.engine.Registry().List()})
}

func (a *APIActor) handleGetExecutors(w http.ResponseWriter, r *http.Request) {
	statuses, err := a.executor.Status()
	if err != nil {
		a.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, map[string]interface{}{
		"executors":     statuses,
		"program_cache": a.engine.CacheStats(),
	})
}

func (a *APIActor) handleGetExecutorLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := a.executor.Logs(parseLimit(r))
	if err != nil {
		a.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []executor.ExecutionLog{}
	}
	a.writeJSON(w, map[string]interface{}{"logs": logs})
}

// Script handlers
func (a *APIActor) handleGetScripts(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}
	scripts, err := a.store.ListScripts()
	if err != nil {
		a.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, map[string]interface{}{"scripts": scripts})
}

func (a *APIActor) handleSaveScript(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}

	var script database.Script
	if !a.decodeBody(w, r, &script, false) {
		return
	}
	if name := chi.URLParam(r, "name"); name != "" {
		script.Name = name
	}

	if !engine.ValidScriptName(script.Name) {
		a.writeError(w, fmt.Sprintf("invalid script name %q", script.Name), http.StatusBadRequest)
		return
	}
	if script.Source == "" {
		a.writeError(w, "script source is required", http.StatusBadRequest)
		return
	}
	if diags := a.engine.Check(script.Source); len(diags) > 0 {
		a.writeJSONStatus(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "script has syntax errors",
			"errors": diags,
		})
		return
	}

	if err := a.store.SaveScript(&script); err != nil {
		a.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	a.logger.Info().Str("script", script.Name).Msg("Script saved")
	code := http.StatusOK
	if r.Method == http.MethodPost {
		code = http.StatusCreated
	}
	a.writeJSONStatus(w, code, script)
}

func (a *APIActor) handleGetScript(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}
	script, err := a.store.GetScript(chi.URLParam(r, "name"))
	if errors.Is(err, database.ErrNotFound) {
		a.writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		a.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, script)
}

func (a *APIActor) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}
	name := chi.URLParam(r, "name")
	err := a.store.DeleteScript(name)
	if errors.Is(err, database.ErrNotFound) {
		a.writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		a.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	a.logger.Info().Str("script", name).Msg("Script deleted")
	a.writeJSON(w, map[string]interface{}{
		"name":   name,
		"status": "deleted",
	})
}

func (a *APIActor) handleRunScript(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if !a.decodeBody(w, r, &req, true) {
		return
	}
	if req.Source != "" {
		a.writeError(w, "source cannot be set when running a saved script", http.StatusBadRequest)
		return
	}
	req.Script = chi.URLParam(r, "name")

	if _, err := a.engine.LoadScript(req.Script); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, engine.ErrScriptNotFound) {
			code = http.StatusNotFound
		}
		a.writeError(w, err.Error(), code)
		return
	}
	a.execute(w, r, &req)
}

func (a *APIActor) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}
	name := chi.URLParam(r, "name")
	if name == "" {
		name = r.URL.Query().Get("script")
	}
	runs, err := a.store.ListRuns(name, parseLimit(r))
	if err != nil {
		a.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, map[string]interface{}{"runs": runs})
}
