package localapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"pixsync/internal/eventbus"
	"pixsync/internal/logging"
	"pixsync/internal/protocol"
	"pixsync/internal/tasks"
)

// TaskReader is the cached view the API serves; the snapshot cache
// implements it.
type TaskReader interface {
	GetTask(taskID string) (tasks.Task, bool, error)
	ListRecent(userID, action string, limit int) ([]tasks.Task, error)
}

type Deps struct {
	Tasks  TaskReader
	Bus    *eventbus.Bus
	Logger *slog.Logger
}

// Server is the local dashboard surface: a JSON API over the snapshot
// cache plus a websocket that mirrors the internal event bus.
type Server struct {
	tasks  TaskReader
	bus    *eventbus.Bus
	hub    *Hub
	logger *slog.Logger
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		tasks:  deps.Tasks,
		bus:    deps.Bus,
		hub:    NewHub(),
		logger: logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.hub.HandleWS)
	mux.HandleFunc("/api/v1/tasks", s.handleListTasks)
	mux.HandleFunc("/api/v1/tasks/", s.handleGetTask)
	return mux
}

// RunBridge mirrors bus events onto the hub until the context ends. Both
// poll-derived and push-derived events arrive here with the same ops, so
// dashboard clients see one uniform stream.
func (s *Server) RunBridge(ctx context.Context) error {
	statusCh, cancelStatus := s.bus.Subscribe(protocol.OpTaskStatus)
	defer cancelStatus()
	pointsCh, cancelPoints := s.bus.Subscribe(protocol.OpWalletPoints)
	defer cancelPoints()
	refreshCh, cancelRefresh := s.bus.Subscribe(protocol.OpTaskRefresh)
	defer cancelRefresh()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-statusCh:
			s.hub.Publish(msg)
		case msg := <-pointsCh:
			s.hub.Publish(msg)
		case msg := <-refreshCh:
			s.hub.Publish(msg)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "clients": s.hub.ClientCount()})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("METHOD_NOT_ALLOWED", "use GET"))
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	list, err := s.tasks.ListRecent(r.URL.Query().Get("user_id"), r.URL.Query().Get("action"), limit)
	if err != nil {
		s.logger.Warn("cached task list failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("CACHE_READ_FAILED", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tasks": list})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("METHOD_NOT_ALLOWED", "use GET"))
		return
	}
	taskID := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	task, ok, err := s.tasks.GetTask(taskID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("CACHE_READ_FAILED", err.Error()))
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("TASK_NOT_FOUND", "task not in cache"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "task": task})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func errorBody(code, message string) map[string]any {
	return map[string]any{
		"ok":    false,
		"error": map[string]any{"code": code, "message": message},
	}
}
