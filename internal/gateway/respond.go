package gateway

import (
	"encoding/json"
	"log"
	"net/http"
)

// writeJSON serializes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf(`{"level":"error","message":"failed to encode response","error":"%s"}`, err)
	}
}

// writeError writes the standard {"error": ..., "message": ...} body.
func writeError(w http.ResponseWriter, status int, errName, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   errName,
		"message": message,
	})
}

// writeStorageError hides persistence failure detail from the client.
func writeStorageError(w http.ResponseWriter, err error) {
	log.Printf(`{"level":"error","message":"storage failure","error":"%s"}`, err)
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"error": "Internal server error",
	})
}
