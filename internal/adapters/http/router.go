package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kirillkom/autofund-client/internal/core/domain"
	"github.com/kirillkom/autofund-client/internal/core/ports"
	"github.com/kirillkom/autofund-client/internal/observability/metrics"
)

const (
	defaultMaxUploadBytes = 10 << 20
	multipartOverhead     = 1 << 20
)

// Options configures the local bridge. Zero values disable the optional
// layers: no verifier means no auth, no RateLimitRPS means no limiter.
type Options struct {
	Connectivity ports.ConnectivityReporter
	Metrics      *metrics.ClientMetrics
	Verifier     TokenVerifier

	MaxUploadBytes int64
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueTimeout   time.Duration
}

// Router exposes the task client to local tools over HTTP and websockets.
type Router struct {
	service  ports.TaskService
	opts     Options
	upgrader websocket.Upgrader
}

func NewRouter(service ports.TaskService, opts Options) *Router {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.QueueTimeout <= 0 {
		opts.QueueTimeout = 250 * time.Millisecond
	}
	return &Router{
		service: service,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     allowLocalOrigin,
		},
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /v1/backend/health", rt.backendHealth)
	mux.HandleFunc("GET /v1/connectivity", rt.connectivity)
	mux.HandleFunc("POST /v1/analyses", rt.createAnalysis)
	mux.HandleFunc("GET /v1/analyses", rt.listAnalyses)
	mux.HandleFunc("GET /v1/analyses/{id}", rt.getAnalysis)
	mux.HandleFunc("DELETE /v1/analyses/{id}", rt.deleteAnalysis)
	mux.HandleFunc("GET /v1/analyses/{id}/result", rt.getResult)
	mux.HandleFunc("GET /v1/analyses/{id}/download/{type}", rt.download)
	mux.HandleFunc("GET /v1/analyses/{id}/events", rt.streamEvents)
	mux.HandleFunc("POST /v1/analyses/{id}/predictions", rt.predictStatus)
	mux.HandleFunc("POST /v1/analyses/{id}/predictions/confirm", rt.confirmPrediction)
	mux.HandleFunc("DELETE /v1/analyses/{id}/predictions", rt.rollbackPrediction)
	mux.HandleFunc("GET /v1/preferences", rt.getPreferences)
	mux.HandleFunc("PATCH /v1/preferences", rt.patchPreferences)
	mux.HandleFunc("POST /v1/preferences/commit", rt.commitPreferences)
	mux.HandleFunc("DELETE /v1/preferences/pending", rt.discardPreferences)
	if rt.opts.Metrics != nil {
		mux.Handle("GET /metrics", rt.opts.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.QueueTimeout)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	handler = authMiddleware(handler, rt.opts.Verifier)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(handler)
	}
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) backendHealth(w http.ResponseWriter, r *http.Request) {
	health, err := rt.service.HealthCheck(r.Context())
	if err != nil {
		rt.writeError(w, err)
		return
	}
	status := http.StatusOK
	if !health.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

type connectivityResponse struct {
	Online             bool `json:"online"`
	OfflineQueueLength int  `json:"offline_queue_length"`
}

func (rt *Router) connectivity(w http.ResponseWriter, _ *http.Request) {
	resp := connectivityResponse{Online: true}
	if rt.opts.Connectivity != nil {
		resp.Online = rt.opts.Connectivity.IsOnline()
		resp.OfflineQueueLength = rt.opts.Connectivity.OfflineQueueLength()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) createAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(rt.opts.MaxUploadBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.writeError(w, domain.NewFailure(domain.CodeFileTooLarge, 0, "upload body too large", false))
			return
		}
		writeBadRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeBadRequest(w, "failed to read uploaded file")
		return
	}

	req := domain.UploadRequest{
		Filename:    fileHeader.Filename,
		Content:     content,
		NIF:         strings.TrimSpace(r.FormValue("nif")),
		FiscalYear:  strings.TrimSpace(r.FormValue("ano_exercicio")),
		CompanyName: strings.TrimSpace(r.FormValue("designacao_social")),
		Email:       strings.TrimSpace(r.FormValue("email")),
		Context:     r.FormValue("context"),
	}
	task, err := rt.service.UploadFile(r.Context(), req, nil)
	if err != nil {
		rt.writeError(w, err)
		return
	}

	rt.service.StartPolling(task.ID, nil)
	writeJSON(w, http.StatusAccepted, task)
}

func (rt *Router) listAnalyses(w http.ResponseWriter, r *http.Request) {
	tasks, err := rt.service.ListTasks(r.Context())
	if err != nil {
		rt.writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []domain.TaskSummary{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// getAnalysis asks the backend first. When the backend is unreachable and
// the task is known locally, the local view is served and marked stale.
func (rt *Router) getAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, err := rt.service.GetTaskStatus(r.Context(), id)
	if err == nil {
		writeJSON(w, http.StatusOK, task)
		return
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		if local, ok := rt.service.Task(id); ok {
			w.Header().Set("X-Autofund-Stale", "true")
			writeJSON(w, http.StatusOK, local)
			return
		}
	}
	rt.writeError(w, err)
}

func (rt *Router) deleteAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := rt.service.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		rt.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) getResult(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	result, err := rt.service.GetTaskResult(r.Context(), r.PathValue("id"), refresh)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) download(w http.ResponseWriter, r *http.Request) {
	fileType, err := domain.ParseFileType(r.PathValue("type"))
	if err != nil {
		writeBadRequest(w, "file type must be excel or json")
		return
	}
	saved, err := rt.service.DownloadFile(r.Context(), r.PathValue("id"), fileType)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("http_response_encode_failed", "error", err)
	}
}
