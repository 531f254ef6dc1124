package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"satchel/internal/api"
	"satchel/internal/config"
	"satchel/internal/logging"
	"satchel/internal/queue"
)

// apiServer exposes the capture and control surfaces over HTTP. The browser
// extension talks to it for submits and SSE events; the control panel uses
// the summary and queue endpoints.
type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.WithComponent(logger, "api-server"),
		daemon: d,
	}

	router := chi.NewRouter()
	router.Use(authMiddleware(cfg.Paths.APIToken))
	router.Route("/api", func(r chi.Router) {
		r.Post("/captures", srv.handleSubmit)
		r.Get("/summary", srv.handleSummary)
		r.Get("/status", srv.handleStatus)
		r.Get("/events", srv.handleEvents)
		r.Route("/queue", func(r chi.Router) {
			r.Get("/", srv.handleQueueList)
			r.Get("/{id}", srv.handleQueueGet)
			r.Post("/{id}/retry", srv.handleQueueRetry)
			r.Delete("/{id}", srv.handleQueueDiscard)
		})
	})

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listen address, for tests that bind to port 0.
func (s *apiServer) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := s.daemon.SaveService().Submit(r.Context(), req)
	if err != nil {
		if reason := api.RejectionReason(err); reason != "" {
			s.writeJSON(w, http.StatusUnprocessableEntity, api.SubmitResponse{Accepted: false, Reason: reason})
			return
		}
		if errors.Is(err, queue.ErrCapacityExceeded) {
			s.writeJSON(w, http.StatusInsufficientStorage, api.SubmitResponse{Accepted: false, Reason: "queue_full"})
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{Accepted: true, QueueID: entry.ID})
}

func (s *apiServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.daemon.SaveService().Summary(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running":    status.Running,
		"pid":        status.PID,
		"online":     status.Online,
		"queue_db":   status.QueueDBPath,
		"lock_file":  status.LockFilePath,
		"inflight":   status.Inflight,
		"pending":    status.Queue.Pending,
		"delivering": status.Queue.Delivering,
		"failed":     status.Queue.Failed,
		"total":      status.Queue.Total,
	})
}

func (s *apiServer) handleQueueList(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, raw := range r.URL.Query()["status"] {
		status, ok := queue.ParseStatus(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		statuses = append(statuses, status)
	}

	views, err := s.daemon.SaveService().List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": views})
}

func (s *apiServer) handleQueueGet(w http.ResponseWriter, r *http.Request) {
	view, err := s.daemon.SaveService().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "entry not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleQueueRetry(w http.ResponseWriter, r *http.Request) {
	err := s.daemon.SaveService().Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "no failed entry with that id")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"retrying": true})
}

func (s *apiServer) handleQueueDiscard(w http.ResponseWriter, r *http.Request) {
	err := s.daemon.SaveService().Discard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "entry not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"discarded": true})
}

// handleEvents streams broadcast events as server-sent events. A subscriber
// that connects after an outcome fired simply misses it; the summary
// endpoint is the reconciliation path.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := s.daemon.Hub().Subscribe(32)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-sub.Events():
			if !open {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, data)
			flusher.Flush()
		}
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("write response failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
