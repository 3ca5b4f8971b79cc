package checklistapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/checklist-api/project/internal/app/cascade"
	"github.com/checklist-api/project/internal/app/checklist"
	platformauth "github.com/checklist-api/project/internal/platform/auth"
)

const noRouteMessage = "no route and no API found with those values"

type Handler struct {
	Service       *checklist.Service
	Auth          *platformauth.Verifier
	Log           zerolog.Logger
	AllowedOrigin string
	Limiter       *rate.Limiter

	enc resourceEncoder
}

type Options struct {
	// BaseURL prefixes every hyperlink in responses, e.g. https://api.example.com.
	BaseURL       string
	AllowedOrigin string
	// RateLimit is requests per second across the authenticated API; zero disables limiting.
	RateLimit float64
	RateBurst int
}

func NewHandler(service *checklist.Service, verifier *platformauth.Verifier, log zerolog.Logger, opts Options) *Handler {
	h := &Handler{
		Service:       service,
		Auth:          verifier,
		Log:           log,
		AllowedOrigin: opts.AllowedOrigin,
		enc:           resourceEncoder{baseURL: strings.TrimRight(opts.BaseURL, "/")},
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		h.Limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestLogger)
	r.Use(h.corsMiddleware)
	r.NotFound(h.handleNoRoute)
	r.MethodNotAllowed(h.handleNoRoute)

	r.Group(func(authR chi.Router) {
		authR.Use(h.rateLimitMiddleware)
		authR.Use(h.authMiddleware)

		authR.Route("/checklists", func(cr chi.Router) {
			cr.Get("/", h.handleListChecklists)
			cr.Post("/", h.handleCreateChecklist)

			cr.Post("/complete", h.handleComplete)
			cr.Post("/incomplete", h.handleIncomplete)

			cr.Get("/items", h.handleListItems)
			cr.Get("/items/summaries", h.handleSummary)

			cr.Get("/templates", h.handleListTemplates)
			cr.Post("/templates", h.handleCreateTemplate)
			cr.Get("/templates/{templateID}", h.handleGetTemplate)
			cr.Patch("/templates/{templateID}", h.handleUpdateTemplate)
			cr.Delete("/templates/{templateID}", h.handleDeleteTemplate)
			cr.Post("/templates/{templateID}/assigns", h.handleAssignTemplate)

			cr.Get("/{checklistID}", h.handleGetChecklist)
			cr.Patch("/{checklistID}", h.handleUpdateChecklist)
			cr.Delete("/{checklistID}", h.handleDeleteChecklist)

			cr.Get("/{checklistID}/items", h.handleGetChecklistItems)
			cr.Post("/{checklistID}/items", h.handleCreateItem)
			cr.Post("/{checklistID}/items/_bulk", h.handleBulkItems)
			cr.Get("/{checklistID}/items/{itemID}", h.handleGetItem)
			cr.Patch("/{checklistID}/items/{itemID}", h.handleUpdateItem)
			cr.Delete("/{checklistID}/items/{itemID}", h.handleDeleteItem)
		})
	})

	return r
}

func (h *Handler) handleNoRoute(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusNotFound, map[string]string{"message": noRouteMessage})
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin, Access-Control-Request-Headers")
		w.Header().Set("Access-Control-Allow-Origin", h.allowedOriginForRequest(r.Header.Get("Origin")))
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")

		requestHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers"))
		if requestHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
		} else {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		// Preflights never reach the authenticated routes.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) allowedOriginForRequest(requestOrigin string) string {
	allowed := strings.TrimSpace(h.AllowedOrigin)
	if allowed == "" || allowed == "*" {
		return "*"
	}

	origin := strings.TrimSpace(requestOrigin)
	if origin == "" {
		return allowed
	}
	if origin == allowed || isEquivalentLoopbackOrigin(origin, allowed) {
		return origin
	}
	return allowed
}

func isEquivalentLoopbackOrigin(originA, originB string) bool {
	a, err := url.Parse(originA)
	if err != nil {
		return false
	}
	b, err := url.Parse(originB)
	if err != nil {
		return false
	}
	if !isLoopbackHost(a.Hostname()) || !isLoopbackHost(b.Hostname()) {
		return false
	}
	if a.Port() != b.Port() {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme)
}

func isLoopbackHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := h.Auth.Verify(r.Header.Get("Authorization"))
		switch {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, platformauth.ErrMissingKey):
			h.writeError(w, http.StatusUnauthorized, "No api key provided")
		default:
			h.writeError(w, http.StatusUnauthorized, "API key not match")
		}
	})
}

func (h *Handler) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter != nil && !h.Limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			h.writeError(w, http.StatusTooManyRequests, "Too Many Requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorBody{Status: status, Error: msg})
}

// writeServiceError maps service errors onto statuses. Anything unrecognized
// is a storage failure: logged in full, reported generically.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, checklist.ErrValidation):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, cascade.ErrNoChecklistAnchor), errors.Is(err, cascade.ErrNoItemAnchor):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, checklist.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Not Found")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		h.writeError(w, http.StatusInternalServerError, "Server Error")
	}
}

// decode reads a JSON body. Malformed JSON is answered with 400 and reported
// as false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}
