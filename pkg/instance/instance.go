package instance

import "os"

// GetID returns a stable identifier for this worker process. It prefers an
// explicit SUBCYCLE_WORKER_ID, falls back to the hostname, and finally to a
// fixed default so log fields are never empty.
func GetID() string {
	if id := os.Getenv("SUBCYCLE_WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "billing-worker-0"
}
