package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/srkrambo/mock-server/internal/metrics"
	"github.com/srkrambo/mock-server/internal/upload"
)

// handleUpload serves the whole upload subtree. Requests carrying the
// Tus-Resumable header speak the resumable protocol; everything else is a
// plain one-shot upload.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Tus-Resumable") != "" {
		s.handleTus(w, r)
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.handlePlainPost(w, r)
	case http.MethodPut:
		s.handlePlainPut(w, r)
	case http.MethodOptions:
		// Capability probe without the protocol header still gets the
		// capability advertisement.
		s.tusOptions(w)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
			"error": "Method not allowed",
		})
	}
}

// uploadID extracts the session id or target filename from /upload/<id>.
func uploadID(r *http.Request) string {
	rest := strings.TrimPrefix(r.URL.Path, "/upload")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return ""
	}
	return path.Base(rest)
}

func (s *Server) handleTus(w http.ResponseWriter, r *http.Request) {
	if version := r.Header.Get("Tus-Resumable"); version != upload.Version {
		writeError(w, http.StatusBadRequest, "Bad Request",
			"Unsupported TUS version. Only "+upload.Version+" is supported")
		return
	}

	if missing := missingTusHeaders(r); len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "Bad Request",
			"Missing required headers: "+strings.Join(missing, ", "))
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.tusCreate(w, r)
	case http.MethodPatch:
		s.tusPatch(w, r)
	case http.MethodHead:
		s.tusHead(w, r)
	case http.MethodOptions:
		s.tusOptions(w)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
			"error": "Unsupported TUS method",
		})
	}
}

// missingTusHeaders returns the protocol headers the method requires but the
// request lacks.
func missingTusHeaders(r *http.Request) []string {
	var required []string
	switch r.Method {
	case http.MethodPost:
		required = []string{"Upload-Length"}
	case http.MethodPatch:
		required = []string{"Upload-Offset", "Content-Type"}
	}

	var missing []string
	for _, name := range required {
		if r.Header.Get(name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func (s *Server) tusCreate(w http.ResponseWriter, r *http.Request) {
	length, err := strconv.ParseInt(r.Header.Get("Upload-Length"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "Upload-Length must be a numeric value")
		return
	}

	session, err := s.engine.Create(r.Context(), length, r.Header.Get("Upload-Metadata"))
	switch {
	case errors.Is(err, upload.ErrInvalidLength):
		writeError(w, http.StatusBadRequest, "Bad Request", "Invalid Upload-Length value")
		return
	case errors.Is(err, upload.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "Payload Too Large",
			fmt.Sprintf("Upload length exceeds maximum allowed size of %d bytes", s.engine.MaxSize()))
		return
	case err != nil:
		writeStorageError(w, err)
		return
	}

	location := "/upload/" + session.ID
	w.Header().Set("Location", location)
	w.Header().Set("Tus-Resumable", upload.Version)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":   true,
		"upload_id": session.ID,
		"location":  location,
	})
}

func (s *Server) tusPatch(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != upload.PatchContentType {
		writeError(w, http.StatusBadRequest, "Bad Request", "Invalid Content-Type for PATCH")
		return
	}

	id := uploadID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "Upload ID not found")
		return
	}

	offset, err := strconv.ParseInt(r.Header.Get("Upload-Offset"), 10, 64)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "Bad Request", "Upload-Offset must be a non-negative numeric value")
		return
	}

	chunk, err := io.ReadAll(io.LimitReader(r.Body, s.engine.MaxSize()+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "Failed to read request body")
		return
	}

	session, err := s.engine.Append(r.Context(), id, offset, chunk)
	switch {
	case errors.Is(err, upload.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", "Upload not found")
		return
	case errors.Is(err, upload.ErrOffsetMismatch):
		writeError(w, http.StatusConflict, "Conflict", "Upload-Offset mismatch")
		return
	case errors.Is(err, upload.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "Payload Too Large",
			"Chunk exceeds the declared upload length")
		return
	case err != nil:
		writeStorageError(w, err)
		return
	}

	metrics.RecordUploadBytes("tus", int64(len(chunk)))

	w.Header().Set("Upload-Offset", strconv.FormatInt(session.Offset, 10))
	w.Header().Set("Tus-Resumable", upload.Version)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"upload_id": session.ID,
		"offset":    session.Offset,
		"complete":  session.Complete(),
	})
}

func (s *Server) tusHead(w http.ResponseWriter, r *http.Request) {
	id := uploadID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "Upload ID not found")
		return
	}

	session, err := s.engine.Status(r.Context(), id)
	if errors.Is(err, upload.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found", "Upload not found")
		return
	}
	if err != nil {
		writeStorageError(w, err)
		return
	}

	w.Header().Set("Upload-Offset", strconv.FormatInt(session.Offset, 10))
	w.Header().Set("Upload-Length", strconv.FormatInt(session.TotalLength, 10))
	w.Header().Set("Tus-Resumable", upload.Version)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) tusOptions(w http.ResponseWriter) {
	w.Header().Set("Tus-Resumable", upload.Version)
	w.Header().Set("Tus-Version", upload.Version)
	w.Header().Set("Tus-Extension", upload.Extensions)
	w.Header().Set("Tus-Max-Size", strconv.FormatInt(s.engine.MaxSize(), 10))
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handlePlainPost(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "Content-Type header is required for file uploads")
		return
	}

	maxSize := s.cfg.MaxUploadSize()
	if cl := r.Header.Get("Content-Length"); cl != "" {
		if length, err := strconv.ParseInt(cl, 10, 64); err == nil && length > maxSize {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload Too Large",
				fmt.Sprintf("Upload size exceeds maximum allowed size of %d bytes", maxSize))
			return
		}
	}

	if strings.Contains(contentType, "multipart/form-data") {
		s.multipartUpload(w, r, maxSize)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "Failed to read request body")
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "No data received",
		})
		return
	}
	if int64(len(body)) > maxSize {
		writeError(w, http.StatusRequestEntityTooLarge, "Payload Too Large",
			fmt.Sprintf("Upload size exceeds maximum allowed size of %d bytes", maxSize))
		return
	}

	if strings.Contains(contentType, "application/json") {
		var payload map[string]interface{}
		if json.Unmarshal(body, &payload) == nil {
			if kind, _ := payload["type"].(string); kind == "base64" {
				s.base64Upload(w, payload)
				return
			}
		}
	}

	s.rawUpload(w, "", body)
}

func (s *Server) handlePlainPut(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "Content-Type header is required for file uploads")
		return
	}

	maxSize := s.cfg.MaxUploadSize()
	if reason := validateContentLength(r.Header.Get("Content-Length"), maxSize); reason != "" {
		writeError(w, http.StatusBadRequest, "Bad Request", reason)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "Failed to read request body")
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "No data received",
		})
		return
	}
	if int64(len(body)) > maxSize {
		writeError(w, http.StatusRequestEntityTooLarge, "Payload Too Large",
			fmt.Sprintf("Upload size exceeds maximum allowed size of %d bytes", maxSize))
		return
	}

	s.rawUpload(w, uploadID(r), body)
}

// validateContentLength checks an explicitly supplied Content-Length. An
// absent header is acceptable; the body is bounded while reading anyway.
func validateContentLength(contentLength string, maxSize int64) string {
	if contentLength == "" {
		return ""
	}
	size, err := strconv.ParseInt(contentLength, 10, 64)
	if err != nil {
		return "Content-Length must be a numeric value"
	}
	if size > maxSize {
		return fmt.Sprintf("File size (%d bytes) exceeds maximum allowed size (%d bytes)", size, maxSize)
	}
	if size <= 0 {
		return "Invalid Content-Length value"
	}
	return ""
}

func (s *Server) multipartUpload(w http.ResponseWriter, r *http.Request, maxSize int64) {
	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "No files uploaded",
		})
		return
	}

	var saved []map[string]interface{}
	for _, headers := range r.MultipartForm.File {
		for _, header := range headers {
			stored, err := s.saver.SaveMultipart(header)
			if errors.Is(err, upload.ErrTooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "Payload Too Large",
					fmt.Sprintf("Upload size exceeds maximum allowed size of %d bytes", maxSize))
				return
			}
			if err != nil {
				continue
			}
			metrics.RecordUploadBytes("multipart", stored.Size)
			saved = append(saved, map[string]interface{}{
				"filename":      stored.Name,
				"original_name": header.Filename,
				"size":          stored.Size,
			})
		}
	}

	if len(saved) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "No files were successfully uploaded",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":     true,
		"files":       saved,
		"upload_type": "multipart",
	})
}

func (s *Server) base64Upload(w http.ResponseWriter, payload map[string]interface{}) {
	filename, _ := payload["filename"].(string)
	content, _ := payload["content"].(string)
	if filename == "" || content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "Missing filename or content",
		})
		return
	}

	stored, err := s.saver.SaveBase64(filename, content)
	switch {
	case errors.Is(err, upload.ErrBadEncoding):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "Invalid base64 content",
		})
		return
	case errors.Is(err, upload.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "Payload Too Large",
			fmt.Sprintf("Upload size exceeds maximum allowed size of %d bytes", s.cfg.MaxUploadSize()))
		return
	case err != nil:
		writeStorageError(w, err)
		return
	}

	metrics.RecordUploadBytes("base64", stored.Size)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":     true,
		"filename":    stored.Name,
		"size":        stored.Size,
		"upload_type": "base64",
	})
}

func (s *Server) rawUpload(w http.ResponseWriter, name string, body []byte) {
	stored, err := s.saver.SaveRaw(name, bytes.NewReader(body))
	if errors.Is(err, upload.ErrTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Payload Too Large",
			fmt.Sprintf("Upload size exceeds maximum allowed size of %d bytes", s.cfg.MaxUploadSize()))
		return
	}
	if err != nil {
		writeStorageError(w, err)
		return
	}

	metrics.RecordUploadBytes("raw", stored.Size)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":     true,
		"filename":    stored.Name,
		"size":        stored.Size,
		"upload_type": "raw",
	})
}
