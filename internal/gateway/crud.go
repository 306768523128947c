package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/srkrambo/mock-server/internal/resources"
)

// handleResource is the generic CRUD surface: any path without a dedicated
// route maps to one stored JSON document, dispatched by HTTP method.
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.resourceGet(w, r)
	case http.MethodPost:
		s.resourcePost(w, r)
	case http.MethodPut:
		s.resourcePut(w, r)
	case http.MethodPatch:
		s.resourcePatch(w, r)
	case http.MethodDelete:
		s.resourceDelete(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
			"error": "Method not supported",
		})
	}
}

func (s *Server) resourceGet(w http.ResponseWriter, r *http.Request) {
	data, err := s.data.Get(r.Context(), r.URL.Path)
	if errors.Is(err, resources.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found",
			fmt.Sprintf("Resource '%s' not found", r.URL.Path))
		return
	}
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

func (s *Server) resourcePost(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		writeError(w, http.StatusBadRequest, "Bad Request",
			"Content-Type header is required for POST requests")
		return
	}

	// File payloads are accepted on any path, same as on /upload.
	if strings.Contains(contentType, "multipart/form-data") {
		maxSize := s.cfg.MaxUploadSize()
		if cl := r.ContentLength; cl > maxSize {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload Too Large",
				fmt.Sprintf("Upload size exceeds maximum allowed size of %d bytes", maxSize))
			return
		}
		s.multipartUpload(w, r, maxSize)
		return
	}

	if !strings.Contains(contentType, "application/json") &&
		!strings.Contains(contentType, "application/x-www-form-urlencoded") {
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported Media Type",
			"Content-Type must be application/json or application/x-www-form-urlencoded for data storage")
		return
	}

	body, reason := decodeBody(r)
	if reason != "" {
		writeError(w, http.StatusBadRequest, "Bad Request", reason)
		return
	}

	if kind, _ := body["type"].(string); kind == "base64" {
		s.base64Upload(w, body)
		return
	}

	if err := s.data.Put(r.Context(), r.URL.Path, body); err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Resource created",
		"resource": r.URL.Path,
	})
}

func (s *Server) resourcePut(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		writeError(w, http.StatusBadRequest, "Bad Request",
			"Content-Type header is required for PUT requests")
		return
	}

	// Binary bodies route to raw file storage, named after the last path
	// segment.
	if isBinaryContentType(contentType) {
		s.handlePlainPut(w, r)
		return
	}

	if !strings.Contains(contentType, "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported Media Type",
			"Content-Type must be application/json for data updates")
		return
	}

	body, reason := decodeBody(r)
	if reason != "" {
		writeError(w, http.StatusBadRequest, "Bad Request", reason)
		return
	}

	exists, err := s.data.Exists(r.Context(), r.URL.Path)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if err := s.data.Put(r.Context(), r.URL.Path, body); err != nil {
		writeStorageError(w, err)
		return
	}

	status, message := http.StatusCreated, "Resource created"
	if exists {
		status, message = http.StatusOK, "Resource updated"
	}
	writeJSON(w, status, map[string]interface{}{
		"message":  message,
		"resource": r.URL.Path,
	})
}

func (s *Server) resourcePatch(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		writeError(w, http.StatusBadRequest, "Bad Request",
			"Content-Type header is required for PATCH requests")
		return
	}
	if !strings.Contains(contentType, "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported Media Type",
			"Content-Type must be application/json for PATCH requests")
		return
	}

	body, reason := decodeBody(r)
	if reason != "" {
		writeError(w, http.StatusBadRequest, "Bad Request", reason)
		return
	}

	_, err := s.data.Merge(r.Context(), r.URL.Path, body)
	if errors.Is(err, resources.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "Resource not found",
		})
		return
	}
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Resource patched",
		"resource": r.URL.Path,
	})
}

func (s *Server) resourceDelete(w http.ResponseWriter, r *http.Request) {
	err := s.data.Delete(r.Context(), r.URL.Path)
	if errors.Is(err, resources.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found", "Resource not found")
		return
	}
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Resource deleted",
		"resource": r.URL.Path,
	})
}

// decodeBody parses a JSON or form-encoded request body into a flat map. The
// second return is a client-facing failure reason.
func decodeBody(r *http.Request) (map[string]interface{}, string) {
	contentType := r.Header.Get("Content-Type")

	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return nil, "Failed to parse form body"
		}
		body := make(map[string]interface{}, len(r.PostForm))
		for key, values := range r.PostForm {
			if len(values) > 0 {
				body[key] = values[0]
			}
		}
		return body, ""
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, "Failed to read request body"
	}
	if len(raw) == 0 {
		return map[string]interface{}{}, ""
	}

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, "Request body must be a JSON object"
	}
	return body, ""
}

func isBinaryContentType(contentType string) bool {
	return strings.Contains(contentType, "application/octet-stream") ||
		strings.HasPrefix(contentType, "image/") ||
		strings.HasPrefix(contentType, "video/") ||
		strings.HasPrefix(contentType, "audio/")
}
