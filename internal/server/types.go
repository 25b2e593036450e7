// Package server provides the HTTP surface of the transform API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"github.com/maauso/transform-api/internal/media"
	"github.com/maauso/transform-api/internal/storage"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
	// RequestID echoes X-Request-ID when present.
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

// ProbeResponse is the HTTP response for a media probe.
type ProbeResponse struct {
	Format    media.ProbeFormat   `json:"format"`
	Streams   []media.ProbeStream `json:"streams"`
	HasVideo  bool                `json:"has_video"`
	HasAudio  bool                `json:"has_audio"`
	Thumbnail string              `json:"thumbnail"`
}

// PublishResponse is the HTTP response after uploading a file to object storage.
type PublishResponse = storage.UploadResult

// SignedURLRequest carries the query parameters of the signed URL endpoint.
type SignedURLRequest struct {
	// Filename is the download name offered to the client. Defaults to the object name.
	Filename string `validate:"omitempty,max=255,printascii,excludesall=\"/\\"`
}

// SignedURLResponse is the HTTP response for a signed download link.
type SignedURLResponse struct {
	URL string `json:"url"`
}

// DeleteRequest is the HTTP request body for deleting published media.
type DeleteRequest struct {
	// Names are object names under the namespace. Every object whose key
	// starts with "<namespace>/<name>" is removed.
	Names []string `json:"names" validate:"required,min=1,max=1000,dive,required,max=255"`
}

// DeleteResponse is the HTTP response after a delete.
type DeleteResponse = storage.DeleteResult
