package model

import (
	"sync"
	"time"
)

// LoadHealth tracks the outcome of artifact loads for one store.
type LoadHealth struct {
	// Available indicates an artifact is installed and serving reads.
	Available bool `json:"available"`

	// LastSuccess is the time of the last successful load.
	LastSuccess time.Time `json:"last_success,omitempty"`

	// LastFailure is the time of the last failed load.
	LastFailure time.Time `json:"last_failure,omitempty"`

	// FailureCount is the number of consecutive failed loads.
	FailureCount int `json:"failure_count"`

	// LastError is the message of the last failed load.
	LastError string `json:"last_error,omitempty"`
}

// healthState guards a LoadHealth.
type healthState struct {
	mu     sync.RWMutex
	status LoadHealth
}

func (h *healthState) markSuccess(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.status.Available = true
	h.status.LastSuccess = at
	h.status.FailureCount = 0
	h.status.LastError = ""
}

// markFailure leaves Available untouched: a failed reload keeps serving the
// previous artifact.
func (h *healthState) markFailure(at time.Time, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.status.LastFailure = at
	h.status.FailureCount++
	h.status.LastError = err.Error()
}

func (h *healthState) snapshot() LoadHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}
