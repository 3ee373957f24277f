// Package checker runs the outbound probes behind every monitor type.
// A probe never fails with an error: every outcome, including transport
// failures, is expressed as a Result and recorded as a heartbeat.
package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"syscall"

	"github.com/watchpost/watchpost/internal/storage"
)

// Result is the outcome of a single probe, in heartbeat terms.
type Result struct {
	Status         string // up, down, degraded
	ResponseTimeMs int64
	StatusCode     *int   // HTTP probes only
	ErrorMessage   string // set when Status is down
}

// Checker probes one monitor type.
type Checker interface {
	// Type returns the monitor type this checker handles.
	Type() string
	// Check runs one probe against the monitor's target.
	Check(ctx context.Context, m *storage.Monitor) *Result
}

// Registry holds all registered checkers by monitor type.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

func (r *Registry) Register(c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[c.Type()] = c
}

func (r *Registry) Get(typ string) (Checker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checkers[typ]
	if !ok {
		return nil, fmt.Errorf("no checker registered for type: %s", typ)
	}
	return c, nil
}

// DefaultRegistry creates a registry with all built-in checkers.
func DefaultRegistry(allowPrivateTargets bool) *Registry {
	r := NewRegistry()
	r.Register(&HTTPChecker{AllowPrivate: allowPrivateTargets})
	r.Register(&TCPChecker{AllowPrivate: allowPrivateTargets})
	r.Register(&DNSChecker{})
	return r
}

// normalizeNetError flattens transport failures into the short, stable
// strings stored on heartbeats and shown as incident causes.
func normalizeNetError(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "Request timed out"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "Connection refused"
	}
	return err.Error()
}
