package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appai "github.com/stagepass/audioscan/internal/application/ai"
	appscans "github.com/stagepass/audioscan/internal/application/scans"
	domai "github.com/stagepass/audioscan/internal/domain/ai"
	domain "github.com/stagepass/audioscan/internal/domain/scans"
	"github.com/stagepass/audioscan/internal/middleware"
)

const maxBodyBytes = 1 << 20

type Router struct {
	scansSvc *appscans.Service
	aiSvc    *appai.Service
}

// Options carries the cross-cutting pieces of the HTTP stack. Nil fields are skipped.
type Options struct {
	JWTSecret      []byte
	AllowedOrigins []string
	Metrics        *middleware.Metrics
	Limiter        *middleware.RateLimiter
	Health         *middleware.Health
}

func NewRouter(scansSvc *appscans.Service, aiSvc *appai.Service, opts Options) http.Handler {
	r := &Router{scansSvc: scansSvc, aiSvc: aiSvc}
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.LoggingMiddleware)
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	if len(opts.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders:   []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	health := opts.Health
	if health == nil {
		health = &middleware.Health{}
	}
	mux.Get("/health", health.Handler())
	mux.Get("/ready", health.Readiness())
	mux.Get("/live", middleware.LivenessHandler)
	if opts.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	mux.Route("/v1", func(rt chi.Router) {
		rt.Use(middleware.JWTAuth(opts.JWTSecret))
		if opts.Limiter != nil {
			rt.Use(opts.Limiter.Middleware)
		}

		rt.Post("/releases/{releaseID}/scans", r.wrap(r.handleSubmit))
		rt.Get("/releases/{releaseID}/scans", r.wrap(r.handleListRelease))
		rt.Get("/scans/{id}", r.wrap(r.handleGet))
		rt.Get("/scans/jobs/{jobID}", r.wrap(r.handleGetByJob))

		rt.Route("/admin/scans", func(ad chi.Router) {
			ad.Use(middleware.RequireAdmin)
			ad.Get("/flagged", r.wrap(r.handleListFlagged))
			ad.Post("/{id}/review", r.wrap(r.handleReview))
			ad.Get("/{id}/errors", r.wrap(r.handleScanErrors))
			ad.Get("/{id}/suggestion", r.wrap(r.handleSuggestion))
		})
		rt.With(middleware.RequireAdmin).Get("/admin/releases/{releaseID}/errors", r.wrap(r.handleReleaseErrors))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status := statusFor(err)
			msg := err.Error()
			if status == http.StatusInternalServerError {
				log.WithError(err).WithFields(log.Fields{
					"path":       req.URL.Path,
					"request_id": middleware.RequestIDFromContext(req.Context()),
				}).Error("request failed")
				msg = "internal error"
			}
			writeJSON(w, status, map[string]string{"error": msg})
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domai.ErrDisabled):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrGatewayUnavailable), errors.Is(err, domain.ErrGatewayRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, req *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrValidation, err)
	}
	return nil
}

func caller(req *http.Request) (domain.Caller, error) {
	c, ok := middleware.CallerFromContext(req.Context())
	if !ok {
		return domain.Caller{}, fmt.Errorf("%w: unauthenticated", domain.ErrForbidden)
	}
	return c, nil
}

func pathID(req *http.Request, name string) (string, error) {
	v := chi.URLParam(req, name)
	if err := middleware.ValidateID(name, v); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return v, nil
}

// POST /v1/releases/{releaseID}/scans
// Body: {"track_id": "...", "audio_url": "...", "metadata": {"title","artist","isrc"}}
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	c, err := caller(req)
	if err != nil {
		return err
	}
	releaseID, err := pathID(req, "releaseID")
	if err != nil {
		return err
	}

	var body struct {
		TrackID  string               `json:"track_id"`
		AudioURL string               `json:"audio_url"`
		Metadata domain.TrackMetadata `json:"metadata"`
	}
	if err := decode(w, req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateID("track_id", body.TrackID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := middleware.ValidateAudioRef(body.AudioURL); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := middleware.ValidateISRC(body.Metadata.ISRC); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	rec, err := r.scansSvc.Submit(req.Context(), appscans.SubmitCommand{
		Caller:    c,
		ReleaseID: releaseID,
		TrackID:   body.TrackID,
		AudioURL:  strings.TrimSpace(body.AudioURL),
		Metadata: domain.TrackMetadata{
			Title:  middleware.SanitizeString(body.Metadata.Title),
			Artist: middleware.SanitizeString(body.Metadata.Artist),
			ISRC:   strings.ToUpper(strings.ReplaceAll(body.Metadata.ISRC, "-", "")),
		},
	})
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusCreated, map[string]any{
		"scan_id":         rec.ID,
		"external_job_id": rec.ExternalJobID,
		"scan_status":     rec.ScanStatus,
	})
}

// GET /v1/releases/{releaseID}/scans?refresh=true
func (r *Router) handleListRelease(w http.ResponseWriter, req *http.Request) error {
	c, err := caller(req)
	if err != nil {
		return err
	}
	releaseID, err := pathID(req, "releaseID")
	if err != nil {
		return err
	}
	refresh, _ := strconv.ParseBool(req.URL.Query().Get("refresh"))

	out, err := r.scansSvc.ListRelease(req.Context(), c, releaseID, refresh)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, out)
}

// GET /v1/scans/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	c, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}

	rec, err := r.scansSvc.Reconcile(req.Context(), c, domain.ScanID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rec)
}

// GET /v1/scans/jobs/{jobID}
func (r *Router) handleGetByJob(w http.ResponseWriter, req *http.Request) error {
	c, err := caller(req)
	if err != nil {
		return err
	}
	jobID := chi.URLParam(req, "jobID")

	rec, err := r.scansSvc.ReconcileByJob(req.Context(), c, jobID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rec)
}

// GET /v1/admin/scans/flagged?reviewed=false&limit=50
func (r *Router) handleListFlagged(w http.ResponseWriter, req *http.Request) error {
	c, err := caller(req)
	if err != nil {
		return err
	}
	var reviewed *bool
	if v := req.URL.Query().Get("reviewed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: reviewed must be true or false", domain.ErrValidation)
		}
		reviewed = &b
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.scansSvc.ListFlagged(req.Context(), c, reviewed, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/admin/scans/{id}/review
// Body: {"decision": "approved"|"rejected", "notes": "..."}
func (r *Router) handleReview(w http.ResponseWriter, req *http.Request) error {
	c, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	var body struct {
		Decision string `json:"decision"`
		Notes    string `json:"notes"`
	}
	if err := decode(w, req, &body); err != nil {
		return err
	}

	rec, err := r.scansSvc.Review(req.Context(), appscans.ReviewCommand{
		Caller:   c,
		ScanID:   domain.ScanID(id),
		Decision: domain.Decision(strings.ToLower(strings.TrimSpace(body.Decision))),
		Notes:    middleware.SanitizeString(body.Notes),
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rec)
}

// GET /v1/admin/scans/{id}/errors?limit=20
func (r *Router) handleScanErrors(w http.ResponseWriter, req *http.Request) error {
	c, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.scansSvc.ScanErrors(req.Context(), c, domain.ScanID(id), limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/admin/scans/{id}/suggestion
func (r *Router) handleSuggestion(w http.ResponseWriter, req *http.Request) error {
	c, err := caller(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	if !r.aiSvc.Enabled() {
		return domai.ErrDisabled
	}

	rec, err := r.scansSvc.Get(req.Context(), c, domain.ScanID(id))
	if err != nil {
		return err
	}
	s, err := r.aiSvc.Suggest(req.Context(), rec)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, s)
}

// GET /v1/admin/releases/{releaseID}/errors?limit=20
func (r *Router) handleReleaseErrors(w http.ResponseWriter, req *http.Request) error {
	c, err := caller(req)
	if err != nil {
		return err
	}
	releaseID, err := pathID(req, "releaseID")
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.scansSvc.ReleaseErrors(req.Context(), c, releaseID, limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}
