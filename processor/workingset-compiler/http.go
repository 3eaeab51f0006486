package workingsetcompiler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// RegisterHTTPHandlers registers HTTP handlers for the working-set-compiler
// component. The prefix includes the trailing slash (e.g.
// "/workingset-compiler/").
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(prefix+"responses/", c.handleGetResponse)
	mux.HandleFunc(prefix+"health", c.handleHealth)
}

// handleGetResponse handles GET /responses/{request_id}, replaying a
// previously computed compile response from the KV bucket.
func (c *Component) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := extractRequestID(r.URL.Path)
	if requestID == "" {
		http.Error(w, "Request ID required", http.StatusBadRequest)
		return
	}

	c.mu.RLock()
	bucket := c.responseBucket
	c.mu.RUnlock()

	if bucket == nil {
		http.Error(w, "Compile response storage not initialized", http.StatusServiceUnavailable)
		return
	}

	entry, err := bucket.Get(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			http.Error(w, "Compile response not found", http.StatusNotFound)
			return
		}
		c.logger.Error("failed to get compile response", "request_id", requestID, "error", err)
		http.Error(w, "Failed to retrieve compile response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(entry.Value()); err != nil {
		c.logger.Warn("failed to write response", "error", err)
	}
}

// handleHealth returns a trivial static health response, per §6.
func (c *Component) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"healthy","service":"workingset-compiler"}`))
}

func extractRequestID(path string) string {
	idx := strings.LastIndex(path, "/responses/")
	if idx == -1 {
		return ""
	}
	requestID := path[idx+len("/responses/"):]
	return strings.TrimSuffix(requestID, "/")
}
