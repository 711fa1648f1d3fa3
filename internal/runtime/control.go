package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/barathvelmu/deterministic-voice-intelligence/internal/controller"
)

type stateResponse struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type endpointRequest struct {
	BaseURL string `json:"base_url"`
}

type endpointResponse struct {
	BaseURL string `json:"base_url"`
}

func (r *Runtime) routes(metricHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}
	mux.HandleFunc("/control/toggle", r.handleToggle)
	mux.HandleFunc("/control/retry", r.handleRetry)
	mux.HandleFunc("/control/state", r.handleState)
	mux.HandleFunc("/control/endpoint", r.handleEndpoint)
	mux.HandleFunc("/control/history", r.handleHistory)
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleToggle(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The turn outlives the request: a started recording or playback keeps
	// running after this handler returns.
	err := r.ctrl.Toggle(context.Background())
	resp := stateResponse{State: r.ctrl.State().String()}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		if errors.Is(err, controller.ErrBusy) {
			status = http.StatusConflict
		} else {
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, resp)
}

func (r *Runtime) handleRetry(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := r.ctrl.RetryPlayback(context.Background())
	resp := stateResponse{State: r.ctrl.State().String()}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		if errors.Is(err, controller.ErrNothingToRetry) {
			status = http.StatusConflict
		} else {
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, resp)
}

func (r *Runtime) handleState(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{State: r.ctrl.State().String()})
}

func (r *Runtime) handleEndpoint(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, endpointResponse{BaseURL: r.currentBaseURL()})
	case http.MethodPut:
		var body endpointRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		base := strings.TrimSpace(body.BaseURL)
		parsed, err := url.Parse(base)
		if err != nil || base == "" || parsed.Scheme == "" || parsed.Host == "" {
			http.Error(w, "base_url must be an absolute http(s) URL", http.StatusBadRequest)
			return
		}
		if err := r.store.SaveEndpoint(req.Context(), base); err != nil {
			http.Error(w, "failed to persist endpoint", http.StatusInternalServerError)
			return
		}
		r.baseURL.Store(base)
		writeJSON(w, http.StatusOK, endpointResponse{BaseURL: base})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (r *Runtime) handleHistory(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	turns, err := r.store.ListTurns(req.Context(), limit)
	if err != nil {
		http.Error(w, "failed to list turns", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
