package instance

import "os"

const envWorkerID = "CIP_WORKER_ID"

// GetID identifies the running replica in logs. It prefers CIP_WORKER_ID,
// then the host name, then "worker-0".
func GetID() string {
	if id := os.Getenv(envWorkerID); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
