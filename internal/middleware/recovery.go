package middleware

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"time"
)

// Recovery handles panics and returns a 500 Internal Server Error
type Recovery struct {
	logger *log.Logger
}

// NewRecovery creates a new recovery middleware
func NewRecovery() *Recovery {
	return &Recovery{
		logger: log.New(log.Writer(), "", 0),
	}
}

// Middleware recovers from panics and logs the error
func (rec *Recovery) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()

				logEntry := map[string]interface{}{
					"level":     "error",
					"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
					"message":   "panic recovered",
					"error":     fmt.Sprintf("%v", err),
					"stack":     string(stack),
					"method":    r.Method,
					"path":      r.URL.Path,
				}
				jsonLog, _ := json.Marshal(logEntry)
				rec.logger.Println(string(jsonLog))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success": false,
					"error":   "Internal server error",
				})
			}
		}()

		next.ServeHTTP(w, r)
	})
}
