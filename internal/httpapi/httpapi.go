// Package httpapi serves the add-on message contract and the inspector
// launch URL over plain HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"quickloginas-mcp-server/internal/browser"
	"quickloginas-mcp-server/internal/inspector"
	"quickloginas-mcp-server/internal/messaging"
	"quickloginas-mcp-server/internal/salesforce"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxMessageBytes bounds a message request body.
const maxMessageBytes = 64 << 10

type handler struct {
	messages *messaging.Router
	views    *inspector.Registry
}

// NewRouter builds the HTTP surface. mounts add further routes (such as the
// MCP SSE endpoints) to the same router.
func NewRouter(messages *messaging.Router, views *inspector.Registry, mounts ...func(chi.Router)) *chi.Mux {
	h := &handler{messages: messages, views: views}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/api/message", h.handleMessage)
	r.Get(inspector.DefaultLaunchPath, h.handleInspect)
	r.Get(inspector.DefaultLaunchPath+"/{viewID}", h.handleView)
	r.Delete(inspector.DefaultLaunchPath+"/{viewID}", h.handleClose)

	for _, mount := range mounts {
		mount(r)
	}
	return r
}

// handleMessage answers one message. Lookups with nothing to return answer null.
// POST /api/message
func (h *handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messaging.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	res, err := h.messages.Dispatch(r.Context(), req)
	if err != nil {
		writeError(w, messageStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func messageStatus(err error) int {
	switch {
	case errors.Is(err, messaging.ErrUnknownMessage):
		return http.StatusBadRequest
	case errors.Is(err, browser.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusUnprocessableEntity
	}
}

// handleInspect opens an inspector view from its launch parameters. Failed
// loads still return the view, rendered in its error state.
// GET /inspector?id=&sobject=&sfHost=[&store=]
func (h *handler) handleInspect(w http.ResponseWriter, r *http.Request) {
	params := inspector.ParamsFromQuery(r.URL.Query())
	v, err := h.views.Open(r.Context(), params)
	if v == nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, loadStatus(err), viewPayload(v))
}

// GET /inspector/{viewID}
func (h *handler) handleView(w http.ResponseWriter, r *http.Request) {
	v, err := h.views.Get(chi.URLParam(r, "viewID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, viewPayload(v))
}

// DELETE /inspector/{viewID}
func (h *handler) handleClose(w http.ResponseWriter, r *http.Request) {
	if !h.views.Close(chi.URLParam(r, "viewID")) {
		writeError(w, http.StatusNotFound, inspector.ErrUnknownView)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"closed": true})
}

func loadStatus(err error) int {
	var fetchErr *inspector.FetchFailedError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.Is(err, salesforce.ErrNoSession), errors.Is(err, salesforce.ErrNotSalesforceDomain):
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

func viewPayload(v *inspector.View) map[string]interface{} {
	return map[string]interface{}{
		"view":    v.Snapshot(),
		"notices": v.Notices(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// ListenAndServe serves h on port until ctx is cancelled, then shuts down gracefully.
func ListenAndServe(ctx context.Context, port int, h http.Handler) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	log.Printf("[http] listening on :%d", port)

	select {
	case <-ctx.Done():
		log.Printf("[http] shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
