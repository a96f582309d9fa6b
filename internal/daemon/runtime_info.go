package daemon

import (
	"sync"
	"time"
)

// RuntimeInfo records the bound listener ports and start time.
type RuntimeInfo struct {
	mu        sync.RWMutex
	httpPort  int
	grpcPort  int
	startTime time.Time
}

func (r *RuntimeInfo) setPorts(httpPort, grpcPort int) {
	r.mu.Lock()
	r.httpPort = httpPort
	r.grpcPort = grpcPort
	r.mu.Unlock()
}

// HTTPPort returns the bound HTTP port, zero before the gateway starts.
func (r *RuntimeInfo) HTTPPort() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.httpPort
}

// GRPCPort returns the bound gRPC health port.
func (r *RuntimeInfo) GRPCPort() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grpcPort
}

func (r *RuntimeInfo) setStartTime(t time.Time) {
	r.mu.Lock()
	r.startTime = t
	r.mu.Unlock()
}

// StartTime returns when the daemon started serving.
func (r *RuntimeInfo) StartTime() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startTime
}
