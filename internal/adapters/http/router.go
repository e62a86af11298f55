package httpadapter

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/email-analyzer/internal/config"
	"github.com/kirillkom/email-analyzer/internal/core/domain"
	"github.com/kirillkom/email-analyzer/internal/core/ports"
	"github.com/kirillkom/email-analyzer/internal/core/usecase"
	"github.com/kirillkom/email-analyzer/internal/observability/metrics"
)

const (
	sessionCookieName = "analyzer_session"
	multipartMemory   = 8 << 20
	multipartOverhead = 1 << 20
)

//go:embed assets
var assets embed.FS

type RouterOption func(*Router)

// WithBaseContext sets the parent context of async submissions. It should be
// cancelled on shutdown.
func WithBaseContext(ctx context.Context) RouterOption {
	return func(rt *Router) {
		if ctx != nil {
			rt.baseCtx = ctx
		}
	}
}

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

// WithLogger sets the access log destination. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		rt.logger = logger
	}
}

// BreakerReporter lists breaker states per backend operation.
type BreakerReporter interface {
	BreakerStates() map[string]string
}

// WithBreakerReporter adds backend breaker states to /healthz.
func WithBreakerReporter(r BreakerReporter) RouterOption {
	return func(rt *Router) {
		rt.breakers = r
	}
}

type Router struct {
	cfg      config.Config
	sessions *usecase.SessionRegistry
	metrics  *metrics.HTTPServerMetrics
	breakers BreakerReporter
	logger   *slog.Logger
	baseCtx  context.Context

	page      *template.Template
	static    fs.FS
	apiDoc    []byte
	validator *requestValidator
}

func NewRouter(cfg config.Config, sessions *usecase.SessionRegistry, opts ...RouterOption) (*Router, error) {
	page, err := template.ParseFS(assets, "assets/index.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	static, err := fs.Sub(assets, "assets/static")
	if err != nil {
		return nil, fmt.Errorf("open static assets: %w", err)
	}
	apiDoc, err := assets.ReadFile("assets/openapi.yaml")
	if err != nil {
		return nil, fmt.Errorf("read openapi document: %w", err)
	}
	validator, err := newRequestValidator(apiDoc)
	if err != nil {
		return nil, err
	}

	rt := &Router{
		cfg:       cfg,
		sessions:  sessions,
		baseCtx:   context.Background(),
		page:      page,
		static:    static,
		apiDoc:    apiDoc,
		validator: validator,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/form", rt.getForm)
	api.HandleFunc("PUT /api/form/text", rt.putText)
	api.HandleFunc("PUT /api/form/file", rt.putFile)
	api.HandleFunc("DELETE /api/form/file", rt.deleteFile)
	api.HandleFunc("POST /api/form/submit", rt.submit)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", rt.renderPage)
	mux.HandleFunc("POST /{$}", rt.postForm)
	mux.HandleFunc("POST /form/file/remove", rt.postRemoveFile)
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openapiDocument)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(rt.static)))
	mux.Handle("/api/", rt.validator.middleware(api))
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler, rt.logger)
	return requestIDMiddleware(handler)
}

type healthResponse struct {
	Status          string            `json:"status"`
	AnalysisBreaker map[string]string `json:"analysis_breaker,omitempty"`
}

// healthz answers 200 whatever the breaker state.
func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	out := healthResponse{Status: "ok"}
	if rt.breakers != nil {
		out.AnalysisBreaker = rt.breakers.BreakerStates()
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) openapiDocument(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(rt.apiDoc)
}

type pageData struct {
	View domain.View
}

func (rt *Router) renderPage(w http.ResponseWriter, r *http.Request) {
	form := rt.acquireSession(w, r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := rt.page.Execute(w, pageData{View: domain.Render(form.State())}); err != nil {
		slog.Error("render_page_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}

// postForm serves browsers without scripts: a chosen file wins over the text,
// then the cycle runs synchronously.
func (rt *Router) postForm(w http.ResponseWriter, r *http.Request) {
	form := rt.acquireSession(w, r)
	rt.limitBody(w, r)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, r, uploadError(err))
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	ctx := r.Context()
	file, header, err := r.FormFile("file")
	switch {
	case err == nil && strings.TrimSpace(header.Filename) != "":
		defer file.Close()
		if err := form.SelectFile(ctx, header.Filename, header.Header.Get("Content-Type"), file); err != nil {
			writeError(w, r, err)
			return
		}
	default:
		text := r.FormValue("email_text")
		if _, hasFile := form.State().Input.File(); !hasFile || text != "" {
			_ = form.SetText(ctx, text)
		}
	}

	if err := form.Submit(ctx); err != nil && !domain.IsKind(err, domain.ErrSubmitInFlight) {
		slog.Debug("form_submit_settled_with_error", "request_id", requestIDFromContext(ctx), "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (rt *Router) postRemoveFile(w http.ResponseWriter, r *http.Request) {
	form := rt.acquireSession(w, r)
	_ = form.RemoveFile(r.Context())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type formResponse struct {
	State domain.FormState `json:"state"`
	View  domain.View      `json:"view"`
}

func (rt *Router) getForm(w http.ResponseWriter, r *http.Request) {
	form, ok := rt.lookupSession(w, r)
	if !ok {
		return
	}
	writeState(w, http.StatusOK, form.State())
}

func (rt *Router) putText(w http.ResponseWriter, r *http.Request) {
	form, ok := rt.lookupSession(w, r)
	if !ok {
		return
	}

	var req struct {
		EmailText string `json:"email_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := form.SetText(r.Context(), req.EmailText); err != nil {
		writeError(w, r, err)
		return
	}
	writeState(w, http.StatusOK, form.State())
}

func (rt *Router) putFile(w http.ResponseWriter, r *http.Request) {
	form, ok := rt.lookupSession(w, r)
	if !ok {
		return
	}

	rt.limitBody(w, r)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, r, uploadError(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	if err := form.SelectFile(r.Context(), header.Filename, header.Header.Get("Content-Type"), file); err != nil {
		writeError(w, r, err)
		return
	}
	writeState(w, http.StatusOK, form.State())
}

func (rt *Router) deleteFile(w http.ResponseWriter, r *http.Request) {
	form, ok := rt.lookupSession(w, r)
	if !ok {
		return
	}
	if err := form.RemoveFile(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeState(w, http.StatusOK, form.State())
}

// submit starts a cycle. By default it returns 202 while the request is in
// flight; wait=true blocks until it settles.
func (rt *Router) submit(w http.ResponseWriter, r *http.Request) {
	form, ok := rt.lookupSession(w, r)
	if !ok {
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		err := form.Submit(r.Context())
		rt.writeSubmitOutcome(w, r, form, err, http.StatusOK)
		return
	}

	_, err := form.SubmitAsync(rt.baseCtx)
	rt.writeSubmitOutcome(w, r, form, err, http.StatusAccepted)
}

// writeSubmitOutcome reports a cycle. Backend failures are part of the form
// state, so only rejected submissions change the status code.
func (rt *Router) writeSubmitOutcome(w http.ResponseWriter, r *http.Request, form ports.FormService, err error, okStatus int) {
	switch {
	case err == nil:
		writeState(w, okStatus, form.State())
	case domain.IsKind(err, domain.ErrSubmitInFlight):
		writeError(w, r, err)
	case domain.IsKind(err, domain.ErrValidation):
		writeState(w, http.StatusUnprocessableEntity, form.State())
	default:
		writeState(w, http.StatusOK, form.State())
	}
}

func (rt *Router) acquireSession(w http.ResponseWriter, r *http.Request) ports.FormService {
	id, form, created := rt.sessions.Acquire(sessionID(r))
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return form
}

func (rt *Router) lookupSession(w http.ResponseWriter, r *http.Request) (ports.FormService, bool) {
	form, err := rt.sessions.Lookup(sessionID(r))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return form, true
}

func (rt *Router) limitBody(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+multipartOverhead)
	}
}

func sessionID(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.WrapError(domain.ErrInvalidInput, "read upload", fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
	}
	return domain.WrapError(domain.ErrInvalidInput, "read upload", err)
}

func writeState(w http.ResponseWriter, status int, state domain.FormState) {
	writeJSON(w, status, formResponse{State: state, View: domain.Render(state)})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
