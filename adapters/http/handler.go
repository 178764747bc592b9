// Package http exposes the service dispatcher over a JSON HTTP API.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/mesgate/adapters/metrics"
	"github.com/artpar/mesgate/app"
	"github.com/artpar/mesgate/core/openapi"
	"github.com/artpar/mesgate/core/schema"
	"github.com/artpar/mesgate/domain/entity"
	"github.com/artpar/mesgate/domain/notification"
	"github.com/artpar/mesgate/pkg/jsonapi"
	"github.com/artpar/mesgate/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds a service call payload.
const maxBodyBytes = 1 << 20

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// Deps contains dependencies for the API handler.
type Deps struct {
	Dispatcher    *app.Dispatcher
	Schema        *app.SchemaService
	Entities      ports.EntityStore
	Calls         ports.CallStore         // optional
	Notifications ports.NotificationStore // optional
	Hasher        ports.Hasher
	Metrics       *metrics.Collector // optional
	Logger        zerolog.Logger
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	// TokenHash is the bcrypt hash of the bearer token. Empty disables auth.
	TokenHash string

	// MetricsPath mounts the Prometheus handler when Metrics is set.
	MetricsPath    string
	MetricsHandler http.Handler // defaults to promhttp.Handler()

	Version        string
	RequestTimeout time.Duration
}

// Handler serves the service API.
type Handler struct {
	dispatcher    *app.Dispatcher
	schema        *app.SchemaService
	entities      ports.EntityStore
	calls         ports.CallStore
	notifications ports.NotificationStore
	hasher        ports.Hasher
	metrics       *metrics.Collector
	logger        zerolog.Logger
	tokenHash     []byte
	version       string
}

// NewRouter creates the main HTTP router.
func NewRouter(deps Deps, cfg RouterConfig) chi.Router {
	h := &Handler{
		dispatcher:    deps.Dispatcher,
		schema:        deps.Schema,
		entities:      deps.Entities,
		calls:         deps.Calls,
		notifications: deps.Notifications,
		hasher:        deps.Hasher,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		tokenHash:     []byte(cfg.TokenHash),
		version:       cfg.Version,
	}
	if h.version == "" {
		h.version = "dev"
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	if deps.Metrics != nil {
		r.Use(NewMetricsMiddleware(deps.Metrics))
	}

	// Health endpoints (no auth required)
	r.Get("/healthz", Liveness)
	r.Get("/version", h.Version)

	if deps.Metrics != nil && cfg.MetricsPath != "" {
		handler := cfg.MetricsHandler
		if handler == nil {
			handler = promhttp.Handler()
		}
		r.Handle(cfg.MetricsPath, handler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/services", h.listServices)
		r.Get("/services.yaml", h.exportServices)
		r.Get("/openapi.json", h.openAPI)
		r.Get("/services/{service}", h.getService)
		r.Get("/services/{service}/schema", h.serviceSchema)
		r.Post("/services/{service}", h.callService)

		r.Get("/calls", h.listCalls)
		r.Get("/calls/{id}", h.getCall)

		r.Get("/entities", h.listEntities)
		r.Get("/entities/{id}", h.getEntity)

		r.Get("/notifications", h.listNotifications)
		r.Delete("/notifications/{id}", h.dismissNotification)
	})

	return r
}

// Liveness reports that the process is serving.
func Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Version returns the build version.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(VersionResponse{
		Version: h.version,
		Service: "mesgate",
	})
}

// authenticate checks the bearer token against the configured bcrypt hash.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(h.tokenHash) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			h.authFailed(w, "missing_token", "Provide a bearer token in the Authorization header")
			return
		}
		if !h.hasher.Compare(h.tokenHash, token) {
			h.authFailed(w, "invalid_token", "The provided token is invalid")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) authFailed(w http.ResponseWriter, reason, detail string) {
	if h.metrics != nil {
		h.metrics.AuthFailures.WithLabelValues(reason).Inc()
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="mesgate"`)
	jsonapi.WriteError(w, jsonapi.ErrUnauthorized(reason, detail))
}

// extractToken reads the token from the Authorization header (Bearer) or X-API-Key.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
	}
	return r.Header.Get("X-API-Key")
}

// -----------------------------------------------------------------------------
// Services
// -----------------------------------------------------------------------------

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	doc := h.schema.Document()
	views := make([]serviceView, 0, len(doc.Services))
	for _, svc := range doc.Services {
		views = append(views, newServiceView(svc, h.dispatcher.HasHandler(svc.Name)))
	}
	jsonapi.WriteData(w, http.StatusOK, views, jsonapi.Meta{
		"count":  len(views),
		"source": h.schema.Path(),
	})
}

func (h *Handler) exportServices(w http.ResponseWriter, r *http.Request) {
	data, err := schema.Marshal(h.schema.Document())
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal service document")
		jsonapi.WriteError(w, jsonapi.ErrInternal("could not render service document"))
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}

func (h *Handler) openAPI(w http.ResponseWriter, r *http.Request) {
	g := openapi.NewGenerator(h.schema.Document())
	g.SetInfo(openapi.Info{Title: "mesgate API", Version: h.version})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(g.Generate())
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.lookupService(w, r)
	if !ok {
		return
	}
	jsonapi.WriteData(w, http.StatusOK, newServiceView(svc, h.dispatcher.HasHandler(svc.Name)), nil)
}

func (h *Handler) serviceSchema(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.lookupService(w, r)
	if !ok {
		return
	}
	if _, err := schema.CompileJSONSchema(svc); err != nil {
		h.logger.Error().Err(err).Str("service", svc.Name).Msg("service JSON Schema does not compile")
		jsonapi.WriteError(w, jsonapi.ErrInternal(""))
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	json.NewEncoder(w).Encode(schema.JSONSchema(svc))
}

func (h *Handler) lookupService(w http.ResponseWriter, r *http.Request) (schema.Service, bool) {
	name := chi.URLParam(r, "service")
	svc, ok := h.schema.Document().Service(name)
	if !ok {
		jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("service", name))
	}
	return svc, ok
}

func (h *Handler) callService(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")

	data, err := decodePayload(r.Body)
	if err != nil {
		jsonapi.WriteError(w, jsonapi.ErrBadRequest(err.Error()))
		return
	}

	result, err := h.dispatcher.Call(r.Context(), service, data)
	if err != nil {
		h.writeCallError(w, service, err)
		return
	}

	jsonapi.WriteData(w, http.StatusOK, result, nil)
}

// decodePayload reads a JSON object. An empty body is an empty payload.
func decodePayload(body io.Reader) (map[string]any, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes+1))
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if len(raw) > maxBodyBytes {
		return nil, errors.New("request body too large")
	}
	if strings.TrimSpace(string(raw)) == "" {
		return map[string]any{}, nil
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.New("request body must be a JSON object")
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// writeCallError maps dispatcher errors to status codes.
func (h *Handler) writeCallError(w http.ResponseWriter, service string, err error) {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		errs := make([]jsonapi.Error, 0, len(verr.Result.Errors))
		for _, fe := range verr.Result.Errors {
			errs = append(errs, jsonapi.ErrField(fe.Field, fe.Constraint, fe.Message, fe.Value))
		}
		jsonapi.WriteError(w, errs...)
	case errors.Is(err, app.ErrUnknownService):
		jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("service", service))
	case errors.Is(err, app.ErrNoHandler):
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusNotImplemented, "no_handler", "Not Implemented").
			Detailf("service %s has no handler", service).Build())
	case errors.Is(err, app.ErrMeterNotFound):
		jsonapi.WriteError(w, jsonapi.ErrUnprocessable("meter_not_found", err.Error()))
	case errors.Is(err, app.ErrUnsupported):
		jsonapi.WriteError(w, jsonapi.ErrUnprocessable("unsupported", err.Error()))
	case errors.Is(err, app.ErrInvalidReadings):
		jsonapi.WriteError(w, jsonapi.ErrUnprocessable("invalid_readings", err.Error()))
	case errors.Is(err, app.ErrNoEntities):
		jsonapi.WriteError(w, jsonapi.ErrUnprocessable("no_entities", err.Error()))
	case app.IsNotFound(err):
		// The portal does not know the meter.
		jsonapi.WriteError(w, jsonapi.ErrUnprocessable("meter_not_found", err.Error()))
	case errors.Is(err, app.ErrPortal):
		jsonapi.WriteError(w, jsonapi.ErrBadGateway(err.Error()))
	default:
		h.logger.Error().Err(err).Str("service", service).Msg("service call failed")
		jsonapi.WriteError(w, jsonapi.ErrInternal(""))
	}
}

// -----------------------------------------------------------------------------
// Journal, entities, notifications
// -----------------------------------------------------------------------------

func (h *Handler) listCalls(w http.ResponseWriter, r *http.Request) {
	if h.calls == nil {
		jsonapi.WriteError(w, jsonapi.ErrNotFound("call journal"))
		return
	}

	filter := ports.CallFilter{Service: r.URL.Query().Get("service")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "bad_request", "Bad Request").
				Detail("limit must be a positive integer").Parameter("limit").Build())
			return
		}
		filter.Limit = n
	}

	calls, err := h.calls.List(r.Context(), filter)
	if err != nil {
		h.internalError(w, err, "list calls")
		return
	}
	if calls == nil {
		calls = []ports.ServiceCall{}
	}
	jsonapi.WriteData(w, http.StatusOK, calls, jsonapi.Meta{"count": len(calls)})
}

func (h *Handler) getCall(w http.ResponseWriter, r *http.Request) {
	if h.calls == nil {
		jsonapi.WriteError(w, jsonapi.ErrNotFound("call journal"))
		return
	}

	id := chi.URLParam(r, "id")
	call, err := h.calls.Get(r.Context(), id)
	if errors.Is(err, ports.ErrNotFound) {
		jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("call", id))
		return
	}
	if err != nil {
		h.internalError(w, err, "get call")
		return
	}
	jsonapi.WriteData(w, http.StatusOK, call, nil)
}

func (h *Handler) listEntities(w http.ResponseWriter, r *http.Request) {
	all, err := h.entities.List(r.Context())
	if err != nil {
		h.internalError(w, err, "list entities")
		return
	}

	class := entity.DeviceClass(r.URL.Query().Get("device_class"))
	if class != "" && !class.Valid() {
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "bad_request", "Bad Request").
			Detailf("unknown device class %q", class).Parameter("device_class").Build())
		return
	}

	out := make([]entity.Entity, 0, len(all))
	for _, e := range all {
		if class == "" || e.DeviceClass == class {
			out = append(out, e)
		}
	}
	jsonapi.WriteData(w, http.StatusOK, out, jsonapi.Meta{"count": len(out)})
}

func (h *Handler) getEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, err := h.entities.Get(r.Context(), id)
	if errors.Is(err, ports.ErrNotFound) {
		jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("entity", id))
		return
	}
	if err != nil {
		h.internalError(w, err, "get entity")
		return
	}
	jsonapi.WriteData(w, http.StatusOK, e, nil)
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	if h.notifications == nil {
		jsonapi.WriteData(w, http.StatusOK, []any{}, jsonapi.Meta{"count": 0})
		return
	}

	list, err := h.notifications.List(r.Context())
	if err != nil {
		h.internalError(w, err, "list notifications")
		return
	}
	if list == nil {
		list = []notification.Notification{}
	}
	jsonapi.WriteData(w, http.StatusOK, list, jsonapi.Meta{"count": len(list)})
}

func (h *Handler) dismissNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.notifications == nil {
		jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("notification", id))
		return
	}

	err := h.notifications.Dismiss(r.Context(), id)
	if errors.Is(err, ports.ErrNotFound) {
		jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("notification", id))
		return
	}
	if err != nil {
		h.internalError(w, err, "dismiss notification")
		return
	}
	jsonapi.WriteNoContent(w)
}

func (h *Handler) internalError(w http.ResponseWriter, err error, op string) {
	h.logger.Error().Err(err).Str("op", op).Msg("request failed")
	jsonapi.WriteError(w, jsonapi.ErrInternal(""))
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

// NewMetricsMiddleware records request counts and latency by route pattern.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip metrics for internal endpoints
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}

			m.RequestsTotal.WithLabelValues(r.Method, route, statusLabel(ww.Status())).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// statusLabel returns a string label for the status code.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// NewLoggingMiddleware logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
