package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// HeadSource reports a chain's latest block and the endpoint serving it.
type HeadSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	GetEndpoint() string
}

type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Chains    map[string]ChainStatus `json:"chains,omitempty"`
}

type ChainStatus struct {
	Connected   bool   `json:"connected"`
	Endpoint    string `json:"endpoint"`
	LatestBlock uint64 `json:"latest_block,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := s.healthStatus(ctx)

	httpStatus := http.StatusOK
	if status.Status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	JSON(w, httpStatus, status)
}

// healthStatus is healthy when every chain answers, degraded when some do and
// unhealthy when none do.
func (s *APIServer) healthStatus(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	}
	if len(s.heads) == 0 {
		return status
	}

	names := make([]string, 0, len(s.heads))
	for name := range s.heads {
		names = append(names, name)
	}
	sort.Strings(names)

	status.Chains = make(map[string]ChainStatus, len(names))
	down := 0
	for _, name := range names {
		head := s.heads[name]
		cs := ChainStatus{Connected: true, Endpoint: head.GetEndpoint()}
		block, err := head.LatestBlockNumber(ctx)
		if err != nil {
			cs.Connected = false
			cs.Error = err.Error()
			down++
		} else {
			cs.LatestBlock = block
		}
		status.Chains[name] = cs
	}

	switch {
	case down == len(names):
		status.Status = "unhealthy"
	case down > 0:
		status.Status = "degraded"
	}
	return status
}

func handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
