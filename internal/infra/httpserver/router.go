package httpserver

import (
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apptelemetry "github.com/bryanwahyu/telemetry-insight/internal/application/telemetry"
	domai "github.com/bryanwahyu/telemetry-insight/internal/domain/ai"
	domain "github.com/bryanwahyu/telemetry-insight/internal/domain/telemetry"
	"github.com/bryanwahyu/telemetry-insight/internal/middleware"
)

// maxUploadBytes caps multipart ingest (form memory; file spills to disk)
const maxUploadBytes = 64 << 20

type Router struct {
	svc          *apptelemetry.Service
	workerSecret string
}

func NewRouter(svc *apptelemetry.Service, workerSecret string, checkers map[string]middleware.HealthChecker) http.Handler {
	r := &Router{svc: svc, workerSecret: workerSecret}
	mux := chi.NewRouter()

	mux.Get("/health", middleware.HealthHandler(checkers))
	mux.Get("/health/ready", middleware.ReadinessHandler)
	mux.Get("/health/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Use(r.requireTenant)
		rt.Post("/uploads", r.wrap(r.handleCreateUpload))
		rt.Get("/uploads/latest", r.wrap(r.handleLatest))
		rt.Get("/uploads/{id}", r.wrap(r.handleGetUpload))
		rt.Post("/telemetry/analyze", r.wrap(r.handleAnalyze))
		rt.Post("/telemetry/jobs", r.wrap(r.handleEnqueue))
		rt.Get("/telemetry/status", r.wrap(r.handleStatus))
		rt.Get("/telemetry/preview", r.wrap(r.handlePreview))
	})

	// sweep endpoint, guarded by the worker secret instead of tenant auth
	mux.Post("/v1/worker/process", r.wrap(r.handleWorkerProcess))

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

var errNotFound = errors.New("not found")

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			if errors.Is(err, sql.ErrNoRows) || errors.Is(err, errNotFound) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			if errors.Is(err, domai.ErrQuotaExceeded) {
				http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// requireTenant pins the URL tenant to the authenticated one. When auth is
// disabled (no API keys configured) the context carries no tenant and the URL
// value is trusted as-is.
func (r *Router) requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		authTenant := middleware.GetTenantFromContext(req.Context())
		if authTenant != "" && authTenant != chi.URLParam(req, "tenant") {
			http.Error(w, "tenant mismatch", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/{tenant}/uploads  (multipart: file + sim/track/car/session_date)
func (r *Router) handleCreateUpload(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	if err := middleware.ValidateTenantID(tenant); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return nil
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return nil
	}
	defer file.Close()

	sim := middleware.SanitizeString(req.FormValue("sim"))
	if err := middleware.ValidateSim(sim); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	filename := middleware.SanitizeString(header.Filename)
	if err := middleware.ValidateFilename(filename); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	up, err := r.svc.CreateUpload(req.Context(), apptelemetry.CreateUploadCommand{
		TenantID:    tenant,
		Filename:    filename,
		SizeBytes:   header.Size,
		Sim:         sim,
		Track:       middleware.SanitizeString(req.FormValue("track")),
		Car:         middleware.SanitizeString(req.FormValue("car")),
		SessionDate: middleware.SanitizeString(req.FormValue("session_date")),
		ContentType: header.Header.Get("Content-Type"),
	}, file)
	if err != nil {
		return err
	}

	w.WriteHeader(http.StatusCreated)
	return writeJSON(w, up)
}

// POST /v1/{tenant}/telemetry/analyze
// Body: {"upload_id": "<id>"}
// Runs the analysis inline and reports the orchestration outcome.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	var body struct {
		UploadID string `json:"upload_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	if err := middleware.ValidateUploadID(body.UploadID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	// ownership check belongs here; the orchestrator trusts the id it is given
	up, err := r.svc.Get(req.Context(), tenant, domain.UploadID(body.UploadID))
	if err != nil {
		return err
	}
	if up == nil {
		return errNotFound
	}

	middleware.IncrementAnalyses()
	result := r.svc.RequestAnalysis(req.Context(), up.ID)
	return r.writeJobResult(w, result)
}

// POST /v1/{tenant}/telemetry/jobs
// Body: {"upload_id": "<id>"} — enqueue only, the sweep picks it up.
func (r *Router) handleEnqueue(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	var body struct {
		UploadID string `json:"upload_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	if err := middleware.ValidateUploadID(body.UploadID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	if err := r.svc.EnqueueAnalysis(req.Context(), tenant, domain.UploadID(body.UploadID)); err != nil {
		return err
	}
	return writeJSON(w, map[string]any{"ok": true, "queuedAt": time.Now()})
}

// POST /v1/worker/process — periodic sweep entry point
func (r *Router) handleWorkerProcess(w http.ResponseWriter, req *http.Request) error {
	if r.workerSecret != "" {
		got := req.Header.Get("X-Worker-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(r.workerSecret)) != 1 {
			http.Error(w, "unauthorized worker", http.StatusUnauthorized)
			return nil
		}
	}
	result := r.svc.ProcessNext(req.Context())
	return r.writeJobResult(w, result)
}

// GET /v1/{tenant}/telemetry/status?upload_id=
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	uploadID := req.URL.Query().Get("upload_id")
	if err := middleware.ValidateUploadID(uploadID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	res, err := r.svc.Status(req.Context(), tenant, domain.UploadID(uploadID))
	if err != nil {
		return err
	}
	if res == nil {
		return errNotFound
	}
	return writeJSON(w, res)
}

// GET /v1/{tenant}/telemetry/preview?upload_id=
func (r *Router) handlePreview(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	uploadID := req.URL.Query().Get("upload_id")
	if err := middleware.ValidateUploadID(uploadID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}

	up, preview, err := r.svc.Preview(req.Context(), tenant, domain.UploadID(uploadID))
	if err != nil {
		return err
	}
	if up == nil {
		return errNotFound
	}
	return writeJSON(w, map[string]any{
		"upload":  up,
		"preview": preview,
	})
}

// GET /v1/{tenant}/uploads/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.svc.Latest(req.Context(), tenant, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, list)
}

// GET /v1/{tenant}/uploads/{id}
func (r *Router) handleGetUpload(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")

	up, err := r.svc.Get(req.Context(), tenant, domain.UploadID(id))
	if err != nil {
		return err
	}
	if up == nil {
		return errNotFound
	}
	return writeJSON(w, up)
}

func (r *Router) writeJobResult(w http.ResponseWriter, result domain.JobResult) error {
	switch result.Status {
	case domain.ResultError:
		middleware.IncrementAnalysesFailed()
		return fmt.Errorf("%s", result.Message)
	case domain.ResultIdle:
		return writeJSON(w, map[string]any{"status": "idle", "message": "no pending jobs"})
	default:
		return writeJSON(w, map[string]any{"status": result.Status, "upload_id": result.UploadID})
	}
}
