package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/transform-api/internal/directive"
	"github.com/maauso/transform-api/internal/failure"
	"github.com/maauso/transform-api/internal/fetch"
	"github.com/maauso/transform-api/internal/filter"
	"github.com/maauso/transform-api/internal/media"
	"github.com/maauso/transform-api/internal/storage"
	"github.com/maauso/transform-api/internal/transform"
	"github.com/maauso/transform-api/internal/video"
)

// ImageTransformer applies settings to an image source.
type ImageTransformer interface {
	Transform(ctx context.Context, src transform.Source, settings directive.Settings, outputFormat string) (*transform.Result, error)
}

// VideoBuilder produces cached video transcodes.
type VideoBuilder interface {
	BuildAndRun(ctx context.Context, req video.Request) (video.Result, error)
	Probe(ctx context.Context, path string) (*media.ProbeResult, error)
}

// epoch is sent as Last-Modified on every transform response.
var epoch = time.Unix(0, 0).UTC().Format(http.TimeFormat)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	images      ImageTransformer
	videos      VideoBuilder
	fetcher     fetch.Client
	scratch     storage.Scratch
	store       storage.ObjectStore
	publicDir    string
	proxyScheme  string
	videoTimeout time.Duration
	validator    *validator.Validate
	logger       *slog.Logger
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithFetcher sets the client used by proxy mode.
func WithFetcher(c fetch.Client) HandlerOption {
	return func(h *Handlers) {
		h.fetcher = c
	}
}

// WithScratch sets where proxied videos are staged before transcoding.
// Without it proxy mode serves images only.
func WithScratch(s storage.Scratch) HandlerOption {
	return func(h *Handlers) {
		h.scratch = s
	}
}

// WithObjectStore enables the publish, signed URL and delete endpoints.
func WithObjectStore(s storage.ObjectStore) HandlerOption {
	return func(h *Handlers) {
		h.store = s
	}
}

// WithProxyScheme sets the scheme prepended to proxied sources.
func WithProxyScheme(scheme string) HandlerOption {
	return func(h *Handlers) {
		h.proxyScheme = scheme
	}
}

// WithVideoTimeout bounds each video build. Zero leaves builds bounded only
// by the client connection.
func WithVideoTimeout(d time.Duration) HandlerOption {
	return func(h *Handlers) {
		h.videoTimeout = d
	}
}

// NewHandlers creates a new Handlers instance serving local files from publicDir.
func NewHandlers(images ImageTransformer, videos VideoBuilder, publicDir string, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		images:      images,
		videos:      videos,
		fetcher:     fetch.NewClient(),
		publicDir:   publicDir,
		proxyScheme: "http",
		validator:   validator.New(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Transform handles the local-mode routes:
//
//	GET /transform/{slug}/{options}/{fileName}
//	GET /transform/{slug}/{fileName}
//	GET /transform/{fileName}
//
// Directives come from a JSON object in the query string or the options
// segment. A file name with two extensions, e.g. a.jpg.png, converts the
// source a.jpg to the last extension.
func (h *Handlers) Transform(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	settings, err := directive.ParseSettings(queryKey(r.URL), r.PathValue("options"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	slug := r.PathValue("slug")
	if slug == "" {
		slug = settings.Slug
	}
	if slug != "" && !directive.ValidNamespace(slug) {
		h.fail(w, r, failure.Invalid("server.transform", "invalid slug %q", slug))
		return
	}
	settings = settings.WithSlug(slug)

	sourceName, format := splitFileName(r.PathValue("fileName"))
	file, err := h.publicPath(slug, sourceName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := os.Stat(file); err != nil {
		writeError(w, r, http.StatusNotFound, "file not found", "NOT_FOUND")
		return
	}

	if filter.IsVideo(format) {
		h.serveVideo(w, r, file, format, settings, start)
		return
	}

	result, err := h.images.Transform(r.Context(), transform.FromPath(file), settings, format)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeMedia(w, result.ContentType, result.Data, start)
}

// Proxy handles GET /proxy/transform/{path...}. When the query string holds
// a JSON directive the whole path is the remote source; otherwise the first
// segment holds the options and the query string belongs to the source.
func (h *Handlers) Proxy(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rest := r.PathValue("path")

	var (
		settings directive.Settings
		remote   string
	)
	if d, err := directive.Parse(queryKey(r.URL), ""); err == nil {
		if settings, err = directive.Decode(d); err != nil {
			h.fail(w, r, err)
			return
		}
		remote = rest
	} else {
		options, source, _ := strings.Cut(rest, "/")
		if settings, err = directive.ParseSettings("", options); err != nil {
			h.fail(w, r, err)
			return
		}
		remote = source
		if r.URL.RawQuery != "" {
			remote += "?" + r.URL.RawQuery
		}
	}

	if remote == "" {
		h.fail(w, r, failure.Invalid("server.proxy", "missing source"))
		return
	}

	sourcePath, _, _ := strings.Cut(remote, "?")
	format := strings.ToLower(strings.TrimPrefix(path.Ext(sourcePath), "."))

	data, err := h.fetcher.Fetch(r.Context(), h.proxyScheme+"://"+remote)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if filter.IsVideo(format) {
		if h.scratch == nil {
			writeError(w, r, http.StatusNotImplemented, "video proxying is not enabled", "NOT_CONFIGURED")
			return
		}
		staged, err := h.scratch.SaveContent(r.Context(), data, format)
		if err != nil {
			h.fail(w, r, failure.New(failure.ErrFetch, "server.proxy", err).With("source", remote))
			return
		}
		if !h.serveVideo(w, r, staged, format, settings, start) {
			_ = h.scratch.CleanupTemp(context.WithoutCancel(r.Context()), []string{staged})
		}
		return
	}

	result, err := h.images.Transform(r.Context(), transform.FromBytes(data), settings, format)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeMedia(w, result.ContentType, result.Data, start)
}

// serveVideo transcodes file through the builder and streams the cached
// output. It reports whether a response body was produced.
func (h *Handlers) serveVideo(w http.ResponseWriter, r *http.Request, file, format string, settings directive.Settings, start time.Time) bool {
	req, err := video.NewRequest(file, format, settings)
	if err != nil {
		h.fail(w, r, err)
		return false
	}

	ctx := r.Context()
	if h.videoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.videoTimeout)
		defer cancel()
	}

	res, err := h.videos.BuildAndRun(ctx, req)
	if err != nil {
		h.fail(w, r, err)
		return false
	}

	f, err := os.Open(res.OutputPath)
	if err != nil {
		h.fail(w, r, failure.New(failure.ErrEngine, "server.video", err).With("cache_key", req.CacheKey))
		return false
	}
	defer func() { _ = f.Close() }()

	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	h.setMediaHeaders(w, filter.ContentType(format), start)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("video response interrupted",
			slog.String("cache_key", req.CacheKey),
			slog.String("error", err.Error()),
		)
	}
	return true
}

func (h *Handlers) writeMedia(w http.ResponseWriter, contentType string, data []byte, start time.Time) {
	h.setMediaHeaders(w, contentType, start)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("media response interrupted", slog.String("error", err.Error()))
	}
}

func (h *Handlers) setMediaHeaders(w http.ResponseWriter, contentType string, start time.Time) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Last-Modified", epoch)
	w.Header().Set("X-Time-Elapsed", elapsed(start))
}

// publicPath resolves name under publicDir/slug. Any name is accepted as
// long as it is a single path element that stays inside publicDir.
func (h *Handlers) publicPath(slug, name string) (string, error) {
	if !validFileName(name) {
		return "", failure.Invalid("server.local", "invalid file name %q", name)
	}
	file := filepath.Join(h.publicDir, slug, name)
	rel, err := filepath.Rel(h.publicDir, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", failure.Invalid("server.local", "file name %q escapes the public directory", name)
	}
	return file, nil
}

// validFileName accepts any single path element.
func validFileName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, "/\\\x00")
}

// fail logs err and writes the status that matches its kind.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", attrs...)
	} else {
		h.logger.Warn("request rejected", attrs...)
	}
	writeError(w, r, status, err.Error(), code)
}

// statusOf maps an error kind to an HTTP status and error code.
func statusOf(err error) (int, string) {
	if errors.Is(err, storage.ErrNotConfigured) {
		return http.StatusNotImplemented, "NOT_CONFIGURED"
	}
	switch failure.KindOf(err) {
	case failure.ErrInvalidDirective:
		return http.StatusBadRequest, "INVALID_DIRECTIVE"
	case failure.ErrDecode:
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA"
	case failure.ErrFetch:
		return http.StatusBadGateway, "FETCH_FAILED"
	case failure.ErrStorage:
		return http.StatusBadGateway, "STORAGE_FAILED"
	case failure.ErrCancelled:
		return http.StatusServiceUnavailable, "CANCELLED"
	default:
		return http.StatusInternalServerError, "ENGINE_ERROR"
	}
}

// queryKey returns the first key of the raw query string, unescaped. A JSON
// directive arrives as ?{"w":100} with no value.
func queryKey(u *url.URL) string {
	first, _, _ := strings.Cut(u.RawQuery, "&")
	key, _, _ := strings.Cut(first, "=")
	if unescaped, err := url.QueryUnescape(key); err == nil {
		return unescaped
	}
	return key
}

// splitFileName returns the source file name and the output format. With
// more than one extension the last one is the target format.
func splitFileName(fileName string) (source, format string) {
	parts := strings.Split(fileName, ".")
	format = strings.ToLower(parts[len(parts)-1])
	if len(parts) > 2 {
		return strings.Join(parts[:len(parts)-1], "."), format
	}
	return fileName, format
}

func elapsed(start time.Time) string {
	return fmt.Sprintf("%.2fms", float64(time.Since(start).Microseconds())/1000)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	resp := ErrorResponse{
		Error: message,
		Code:  code,
	}
	if r != nil {
		resp.RequestID = RequestIDFromContext(r.Context())
	}
	writeJSON(w, status, resp)
}
