package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/maauso/transform-api/internal/directive"
	"github.com/maauso/transform-api/internal/failure"
	"github.com/maauso/transform-api/internal/media"
	"github.com/maauso/transform-api/internal/storage"
)

// Probe handles POST /media/{slug}/{fileName}/probe. It returns the stream
// metadata of a local video and writes its poster still next to it.
func (h *Handlers) Probe(w http.ResponseWriter, r *http.Request) {
	file, ok := h.localFile(w, r)
	if !ok {
		return
	}

	result, err := h.videos.Probe(r.Context(), file)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	thumb, err := filepath.Rel(h.publicDir, media.ThumbnailPath(file))
	if err != nil {
		thumb = media.ThumbnailPath(file)
	}

	writeJSON(w, http.StatusOK, ProbeResponse{
		Format:    result.Format,
		Streams:   result.Streams,
		HasVideo:  result.HasVideo(),
		HasAudio:  result.HasAudio(),
		Thumbnail: filepath.ToSlash(thumb),
	})
}

// Publish handles POST /media/{slug}/{fileName}/publish. The local file is
// uploaded to object storage under "<slug>/<fileName>".
func (h *Handlers) Publish(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.fail(w, r, storage.ErrNotConfigured)
		return
	}
	file, ok := h.localFile(w, r)
	if !ok {
		return
	}

	key := r.PathValue("slug") + "/" + r.PathValue("fileName")
	result, err := h.store.Upload(r.Context(), file, key)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.Info("media published",
		slog.String("bucket", result.Location.Bucket),
		slog.String("key", result.Location.Key),
		slog.Int64("size", result.Original.FileSize),
	)
	writeJSON(w, http.StatusCreated, PublishResponse(*result))
}

// SignedURL handles GET /media/{slug}/{fileName}/signed?filename=name.
func (h *Handlers) SignedURL(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.fail(w, r, storage.ErrNotConfigured)
		return
	}
	slug, fileName := r.PathValue("slug"), r.PathValue("fileName")
	if !directive.ValidNamespace(slug) || !validFileName(fileName) {
		h.fail(w, r, failure.Invalid("server.signed", "invalid object name %s/%s", slug, fileName))
		return
	}

	req := SignedURLRequest{Filename: r.URL.Query().Get("filename")}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	if req.Filename == "" {
		req.Filename = fileName
	}

	u, err := h.store.SignedURL(r.Context(), slug+"/"+fileName, req.Filename)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SignedURLResponse{URL: u})
}

// Delete handles DELETE /media/{slug} with a JSON body listing names.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.fail(w, r, storage.ErrNotConfigured)
		return
	}
	slug := r.PathValue("slug")
	if !directive.ValidNamespace(slug) {
		h.fail(w, r, failure.Invalid("server.delete", "invalid slug %q", slug))
		return
	}

	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	result, err := h.store.DeleteObjects(r.Context(), req.Names, slug)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.Info("media deleted",
		slog.String("slug", slug),
		slog.Int("deleted", len(result.Deleted)),
		slog.Int("errors", len(result.Errors)),
	)
	writeJSON(w, http.StatusOK, DeleteResponse(*result))
}

// localFile resolves {slug}/{fileName} under the public directory and writes
// an error response when it is invalid or missing.
func (h *Handlers) localFile(w http.ResponseWriter, r *http.Request) (string, bool) {
	slug := r.PathValue("slug")
	if !directive.ValidNamespace(slug) {
		h.fail(w, r, failure.Invalid("server.media", "invalid slug %q", slug))
		return "", false
	}
	file, err := h.publicPath(slug, r.PathValue("fileName"))
	if err != nil {
		h.fail(w, r, err)
		return "", false
	}

	info, err := os.Stat(file)
	if err != nil || info.IsDir() {
		writeError(w, r, http.StatusNotFound, "file not found", "NOT_FOUND")
		return "", false
	}
	return file, true
}
