package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"image-optimizer-go/internal/config"
	"image-optimizer-go/internal/engine"
	"image-optimizer-go/internal/options"
	"image-optimizer-go/internal/orchestrator"
	"image-optimizer-go/internal/picker"
	"image-optimizer-go/internal/resolver"
	"image-optimizer-go/internal/selection"
	"image-optimizer-go/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Services are the collaborators a Server drives. The orchestrator must be
// built with a picker that accepts the default destination it is offered.
type Services struct {
	FS           afero.Fs
	Selection    *selection.Manager
	Options      *options.Repository
	Orchestrator *orchestrator.Orchestrator
}

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	svc        Services
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	lastReport     *orchestrator.Report

	optionsMutex   sync.RWMutex
	currentOptions options.OptimizeOptions
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type SelectionRequest struct {
	Paths []string `json:"paths"`
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

type RunRequest struct {
	Destination string `json:"destination,omitempty"`
}

type DirectoryInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	IsDirectory  bool   `json:"is_directory"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewServer returns a Server whose editable options start from the
// persisted ones.
func NewServer(cfg *config.Config, svc Services, log *logrus.Logger) *Server {
	s := &Server{
		cfg:            cfg,
		log:            log,
		svc:            svc,
		router:         mux.NewRouter(),
		wsClients:      make(map[*websocket.Conn]bool),
		currentOptions: svc.Options.Load(),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/selection", s.handleGetSelection).Methods("GET")
	api.HandleFunc("/selection", s.handleSetSelection).Methods("POST")
	api.HandleFunc("/selection", s.handleClearSelection).Methods("DELETE")
	api.HandleFunc("/options", s.handleGetOptions).Methods("GET")
	api.HandleFunc("/options", s.handleSetOptions).Methods("PUT")
	api.HandleFunc("/options/mode", s.handleSetMode).Methods("PUT")
	api.HandleFunc("/run", s.handleRun).Methods("POST")
	api.HandleFunc("/results", s.handleGetResults).Methods("GET")
	api.HandleFunc("/directories", s.handleListDirectories).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":       s.running(),
			"progress":      s.svc.Orchestrator.Progress(),
			"has_selection": s.svc.Selection.HasSelection(),
			"images":        len(s.svc.Selection.Images()),
			"mode":          options.DeriveMode(s.options()).String(),
		},
	})
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    selectionData(s.svc.Selection.Paths(), s.svc.Selection.Images()),
	})
}

func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	// A run cannot start while the selection is being replaced.
	s.operationMutex.RLock()
	defer s.operationMutex.RUnlock()
	if s.isRunning {
		s.writeError(w, "Selection cannot change while an optimization is running", http.StatusConflict)
		return
	}

	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	images, err := s.svc.Selection.Set(r.Context(), req.Paths)
	if err != nil {
		var dup *selection.DuplicateNameError
		switch {
		case errors.As(err, &dup), errors.Is(err, selection.ErrEmptySelection):
			s.writeError(w, err.Error(), http.StatusBadRequest)
		default:
			s.writeError(w, fmt.Sprintf("Failed to read selection: %v", err), http.StatusBadRequest)
		}
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: fmt.Sprintf("%d images selected", len(images)),
		Data:    selectionData(req.Paths, images),
	})
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	defer s.operationMutex.RUnlock()
	if s.isRunning {
		s.writeError(w, "Selection cannot change while an optimization is running", http.StatusConflict)
		return
	}
	s.svc.Selection.Clear()
	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Selection cleared",
	})
}

func (s *Server) handleGetOptions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    optionsData(s.options()),
	})
}

// handleSetOptions accepts a partial options record. Fields are merged over
// the current options; the result is persisted by the next completed run.
func (s *Server) handleSetOptions(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.optionsMutex.Lock()
	updated := s.currentOptions
	for key, raw := range patch {
		if err := updated.Set(key, string(raw)); err != nil {
			s.optionsMutex.Unlock()
			s.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if err := updated.Validate(); err != nil {
		s.optionsMutex.Unlock()
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.currentOptions = updated
	s.optionsMutex.Unlock()

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Options updated",
		Data:    optionsData(updated),
	})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	mode, err := options.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.optionsMutex.Lock()
	s.currentOptions = options.ApplyMode(mode, s.currentOptions)
	updated := s.currentOptions
	s.optionsMutex.Unlock()

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Mode set to %s", mode.Label()),
		Data:    optionsData(updated),
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	// Check if already running
	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Optimization already in progress", http.StatusConflict)
		return
	}
	paths, images := s.svc.Selection.Snapshot()
	if len(paths) == 0 {
		s.operationMutex.Unlock()
		s.writeError(w, "No files or directories selected", http.StatusBadRequest)
		return
	}
	s.isRunning = true
	s.operationMutex.Unlock()

	destination := req.Destination
	if destination == "" {
		destination = s.cfg.GetDefaultDestination(picker.DefaultDestination())
	}

	go s.runAsync(orchestrator.RunRequest{
		Paths:              paths,
		Total:              len(images),
		Options:            s.options(),
		DefaultDestination: destination,
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Optimization started",
	})
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	outcomes := s.svc.Orchestrator.Outcomes()
	if outcomes == nil {
		s.writeJSON(w, APIResponse{
			Success: true,
			Data:    nil,
		})
		return
	}

	s.operationMutex.RLock()
	report := s.lastReport
	s.operationMutex.RUnlock()

	data := map[string]interface{}{
		"outcomes":   outcomes,
		"statistics": statisticsData(statistics.Summarize(outcomes)),
	}
	if report != nil {
		data["destination"] = report.Destination
	}
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    data,
	})
}

func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "."
	}

	// Security check - prevent directory traversal
	path = filepath.Clean(path)
	if strings.Contains(path, "..") {
		s.writeError(w, "Invalid path", http.StatusBadRequest)
		return
	}

	entries, err := afero.ReadDir(s.svc.FS, path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to read directory: %v", err), http.StatusInternalServerError)
		return
	}

	directories := []DirectoryInfo{}
	for _, info := range entries {
		if !info.IsDir() && !resolver.IsImage(info.Name()) {
			continue
		}
		directories = append(directories, DirectoryInfo{
			Path:         filepath.Join(path, info.Name()),
			Name:         info.Name(),
			IsDirectory:  info.IsDir(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    directories,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) running() bool {
	s.operationMutex.RLock()
	defer s.operationMutex.RUnlock()
	return s.isRunning
}

func (s *Server) runAsync(req orchestrator.RunRequest) {
	defer func() {
		s.operationMutex.Lock()
		s.isRunning = false
		s.operationMutex.Unlock()
	}()

	s.broadcastWSMessage("run_started", map[string]interface{}{
		"images": req.Total,
		"mode":   options.DeriveMode(req.Options).String(),
	})

	req.OnProgress = func(p float64) {
		s.broadcastWSMessage("progress", map[string]interface{}{
			"percent": p,
		})
	}

	report, err := s.svc.Orchestrator.Run(context.Background(), req)
	switch {
	case err != nil:
		s.broadcastWSMessage("run_error", map[string]interface{}{
			"error": err.Error(),
		})
	case report == nil:
		s.broadcastWSMessage("run_cancelled", map[string]interface{}{
			"message": "No destination selected",
		})
	default:
		s.operationMutex.Lock()
		s.lastReport = report
		s.operationMutex.Unlock()
		s.broadcastWSMessage("run_completed", map[string]interface{}{
			"destination": report.Destination,
			"outcomes":    report.Outcomes,
			"statistics":  statisticsData(report.Statistics),
			"duration":    report.Duration.String(),
		})
	}
}

func (s *Server) options() options.OptimizeOptions {
	s.optionsMutex.RLock()
	defer s.optionsMutex.RUnlock()
	return s.currentOptions
}

func (s *Server) clientCount() int {
	s.wsMutex.RLock()
	defer s.wsMutex.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// gorilla connections support one concurrent writer.
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		err := conn.WriteMessage(websocket.TextMessage, msgBytes)
		if err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}

func selectionData(paths []string, images []resolver.TargetImage) map[string]interface{} {
	if images == nil {
		images = []resolver.TargetImage{}
	}
	return map[string]interface{}{
		"paths":      paths,
		"images":     images,
		"total_size": resolver.TotalSize(images),
	}
}

func optionsData(o options.OptimizeOptions) map[string]interface{} {
	return map[string]interface{}{
		"options": o,
		"mode":    options.DeriveMode(o).String(),
	}
}

// statisticsData omits the ratio when no original bytes were counted;
// JSON has no NaN.
func statisticsData(stats *statistics.Statistics) map[string]interface{} {
	data := map[string]interface{}{
		"summary":        stats.GetSummary(),
		"outcomes":       stats.Outcomes,
		"succeeded":      stats.Successes,
		"failed":         stats.Failures,
		"original_bytes": stats.OriginalBytes,
		"final_bytes":    stats.FinalBytes,
		"bytes_saved":    stats.BytesSaved,
	}
	if stats.HasRatio() {
		data["compression_ratio"] = stats.CompressionRatio
		data["reduced_size"] = stats.ReducedSizeLabel()
	}
	errs := stats.Errors
	if errs == nil {
		errs = []engine.Failure{}
	}
	data["errors"] = errs
	return data
}
