// Package server exposes the backdrop pipeline over HTTP.
//
// Routes:
//
//	GET  /healthz               liveness
//	GET  /api/templates         catalog entries
//	POST /api/validate          per-field validation of a form
//	POST /api/preview/{id}      SVG preview of one template
//	POST /api/export            PNG or ZIP download for the form's selection
//
// Request bodies are the form JSON. Errors are returned as
// {"code", "message", "request_id"} with the user-facing message only.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/export"
	"github.com/matzehuels/backdrop/pkg/form"
	"github.com/matzehuels/backdrop/pkg/pipeline"
)

// Defaults for [Options].
const (
	DefaultMaxBodyBytes    = 64 << 10
	DefaultShutdownTimeout = 10 * time.Second
	DefaultPreviewWidth    = 960
	DefaultPreviewHeight   = 540
)

// Options configures a [Server].
type Options struct {
	Logger *log.Logger
	// Format, Concurrency and Delay are passed to every export.
	Format      string
	Concurrency int
	Delay       time.Duration
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

// Server serves previews and exports from one runner.
type Server struct {
	runner *pipeline.Runner
	opts   Options
	logger *log.Logger
	router chi.Router
}

// New creates a server around r.
func New(r *pipeline.Runner, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	s := &Server{runner: r, opts: opts, logger: opts.Logger}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/templates", s.handleTemplates)
		r.Post("/validate", s.handleValidate)
		r.Post("/preview/{id}", s.handlePreview)
		r.Post("/export", s.handleExport)
	})
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	entries, err := s.runner.Templates(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type validateResponse struct {
	Valid  bool              `json:"valid"`
	Errors form.FieldErrors  `json:"errors,omitempty"`
	Files  map[string]string `json:"files,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	d, err := s.decodeForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d = d.Normalize()
	resp := validateResponse{Errors: d.Validate()}
	resp.Valid = resp.Errors == nil
	if resp.Valid {
		resp.Files = make(map[string]string, len(d.SelectedTemplates))
		for _, id := range d.SelectedTemplates {
			resp.Files[id] = d.FileName(id, "png")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := s.decodeForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	width, err := floatParam(r, "width", DefaultPreviewWidth)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	height, err := floatParam(r, "height", DefaultPreviewHeight)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	svg, err := s.runner.PreviewSVG(r.Context(), id, d, width, height)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(svg)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	d, err := s.decodeForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = s.opts.Format
	}

	res, err := s.runner.Execute(r.Context(), pipeline.Options{
		Data:        d,
		Format:      format,
		Concurrency: s.opts.Concurrency,
		Delay:       s.opts.Delay,
		Logger:      s.logger.With("request_id", requestIDFrom(r.Context())),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	dl := res.Download
	w.Header().Set("Content-Type", dl.MediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Data)))
	w.Header().Set("Content-Disposition", contentDisposition(dl.Name))
	w.Header().Set("X-Run-Id", res.Export.RunID)
	_, _ = w.Write(dl.Data)
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Server) decodeForm(w http.ResponseWriter, r *http.Request) (form.Data, error) {
	var d form.Data
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&d); err != nil {
		return d, errors.Wrap(errors.ErrCodeInvalidInput, err, "request body is not a valid form")
	}
	return d, nil
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, "%s must be a non-negative number", name)
	}
	return f, nil
}

type errorResponse struct {
	Code      errors.Code `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"request_id,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := export.ErrorCode(err), export.UserMessage(err)
	if code == "" {
		code, msg = errors.ErrCodeInternal, "internal error"
	}
	status := statusFor(code)
	id := requestIDFrom(r.Context())
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", id, "code", code, "error", err)
	} else {
		s.logger.Debug("request rejected", "request_id", id, "code", code, "error", err)
	}
	var rl *errors.RateLimitedError
	if stderrors.As(err, &rl) && rl.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter))
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, RequestID: id})
}

func statusFor(code errors.Code) int {
	switch code {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidTemplate, errors.ErrCodeInvalidFormat:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound, errors.ErrCodeTemplateNotFound:
		return http.StatusNotFound
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case errors.ErrCodeTimeout, errors.ErrCodeRasterTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeNetwork, errors.ErrCodeDataLoad, errors.ErrCodePartialFailure, errors.ErrCodeRasterTaint:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
