// Package server implements spec §6's HTTP surface: POST /task/run/sync,
// POST /task/run/async, GET /task/{id}, GET /health.
//
// Grounded on the teacher's cmd/server/server.go route-registration shape
// (mux.Router, a CORS-style middleware wrapping the router, a graceful
// shutdown on SIGINT/SIGTERM) — trimmed from ~40 routes covering
// multi-agent sessions, tool virtualization, and chat history (none of
// which this spec names) down to the four routes spec §6 actually names.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/agentforge/taskrunner/internal/config"
	"github.com/agentforge/taskrunner/pkg/apperrors"
	"github.com/agentforge/taskrunner/pkg/coordinator"
	"github.com/agentforge/taskrunner/pkg/history"
	"github.com/agentforge/taskrunner/pkg/llmgateway"
	"github.com/agentforge/taskrunner/pkg/logger"
	"github.com/agentforge/taskrunner/pkg/model"
	"github.com/agentforge/taskrunner/pkg/registry"
	"github.com/agentforge/taskrunner/pkg/sandbox"
	"github.com/agentforge/taskrunner/pkg/workflow"
)

// ServerCmd starts the task orchestration HTTP server. Kept as a
// subcommand (mirroring the teacher's "mcp-agent server" shape) even
// though the root command runs the same thing by default, since this
// engine has no other mode worth a bare invocation.
var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the task orchestration HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return Run()
	},
}

// api bundles everything an HTTP handler needs.
type api struct {
	coordinator *coordinator.Coordinator
	registry    *registry.Registry
	apiKey      string
	maxFileSize int64
}

// Run loads configuration, wires every component, and serves until
// SIGINT/SIGTERM, then shuts down gracefully.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.CreateLoggerFromEnv(cfg.LogFile, cfg.LogLevel, cfg.LogFormat, true)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	gateway := llmgateway.NewGateway(cfg.Models, log)
	sandboxGateway := sandbox.NewMCPGateway(cfg.Sandbox, log)
	taskRegistry := registry.New(cfg.Registry, log)
	defer taskRegistry.Stop()

	engine := workflow.New(cfg.Workflow, gateway, sandboxGateway, taskRegistry, log)
	taskCoordinator := coordinator.New(cfg.Coordinator, engine, sandboxGateway, taskRegistry, log)

	if cfg.HistoryDBPath != "" {
		historyStore, err := history.Open(cfg.HistoryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer historyStore.Close()
		taskCoordinator = taskCoordinator.WithHistory(historyStore)
	}

	a := &api{
		coordinator: taskCoordinator,
		registry:    taskRegistry,
		apiKey:      cfg.APIKey,
		maxFileSize: int64(cfg.MaxFileSizeMB) * 1024 * 1024,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)

	authed := router.NewRoute().Subrouter()
	authed.Use(a.requireAPIKey)
	authed.HandleFunc("/task/run/sync", a.handleRunSync).Methods(http.MethodPost)
	authed.HandleFunc("/task/run/async", a.handleRunAsync).Methods(http.MethodPost)
	authed.HandleFunc("/task/{id}", a.handleGetTask).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  300 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed to start: %v", err)
		}
	}()
	log.Infof("taskrunner listening on %s", cfg.ListenAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Infof("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// requireAPIKey enforces spec §6's X-API-Key requirement, disabled when
// the configured key is empty.
func (a *api) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.apiKey == "" || r.Header.Get("X-API-Key") == a.apiKey {
			next.ServeHTTP(w, r)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "missing or invalid X-API-Key",
		})
	})
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (a *api) handleRunSync(w http.ResponseWriter, r *http.Request) {
	request, err := a.parseTaskRequest(r)
	if err != nil {
		writeTaskRequestError(w, err)
		return
	}

	response, err := a.coordinator.ProcessSync(r.Context(), request)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}

	status := http.StatusOK
	if !response.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, response)
}

func (a *api) handleRunAsync(w http.ResponseWriter, r *http.Request) {
	request, err := a.parseTaskRequest(r)
	if err != nil {
		writeTaskRequestError(w, err)
		return
	}

	taskID := a.coordinator.ProcessAsync(request)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     taskID,
		"status": string(model.StatusInProgress),
	})
}

func (a *api) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]

	info, ok := a.registry.Get(taskID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "task not found"})
		return
	}

	if info.Status == model.StatusInProgress || info.Response == nil {
		writeJSON(w, http.StatusOK, model.TaskResponse{
			ID:        taskID,
			Status:    model.StatusInProgress,
			Success:   true,
			Answer:    "",
			Artifacts: []model.ArtifactResponse{},
		})
		return
	}

	writeJSON(w, http.StatusOK, info.Response)
}

// parseTaskRequest implements spec §6's multipart request shape:
// task_description (required, non-empty after trim), data_files_description,
// base_path, file_paths[], target_path, and a data_files[] file part.
func (a *api) parseTaskRequest(r *http.Request) (model.TaskRequest, error) {
	maxMemory := a.maxFileSize
	if maxMemory <= 0 {
		maxMemory = 32 << 20
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return model.TaskRequest{}, apperrors.Wrap(apperrors.KindValidation, "failed to parse multipart form", err)
	}

	taskDescription := strings.TrimSpace(r.FormValue("task_description"))
	if taskDescription == "" {
		return model.TaskRequest{}, apperrors.New(apperrors.KindValidation, "task_description is required")
	}

	request := model.TaskRequest{
		TaskDescription:      taskDescription,
		DataFilesDescription: r.FormValue("data_files_description"),
		RemoteBasePath:       r.FormValue("base_path"),
		TargetPath:           r.FormValue("target_path"),
	}
	if r.MultipartForm != nil {
		request.RemoteFilePaths = r.MultipartForm.Value["file_paths[]"]
	}

	files, err := a.readUploadedFiles(r)
	if err != nil {
		return model.TaskRequest{}, err
	}
	request.Files = files

	return request, nil
}

func (a *api) readUploadedFiles(r *http.Request) ([]model.UploadedFile, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}

	headers := r.MultipartForm.File["data_files[]"]
	files := make([]model.UploadedFile, 0, len(headers))

	for _, header := range headers {
		if a.maxFileSize > 0 && header.Size > a.maxFileSize {
			return nil, apperrors.New(apperrors.KindFileTooLarge,
				fmt.Sprintf("file %q exceeds the configured maximum size", header.Filename))
		}

		f, err := header.Open()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindValidation, "failed to open uploaded file", err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindValidation, "failed to read uploaded file", err)
		}

		files = append(files, model.UploadedFile{Filename: header.Filename, Bytes: data})
	}

	return files, nil
}

func writeTaskRequestError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if apperrors.Is(err, apperrors.KindFileTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
