package congestion

import (
	"context"
	"sync"

	"github.com/quic-go/quic-go"
)

// Registry maps connections to their controllers.
// The tracer of a connection is created before the connection itself,
// the shared tracing id connects the two.
type Registry struct {
	mutex       sync.Mutex
	controllers map[uint64]*Controller
}

func NewRegistry() *Registry {
	return &Registry{controllers: map[uint64]*Controller{}}
}

// Register stores controller under the tracing id found in the tracer context.
// It returns false if ctx carries no tracing id.
func (r *Registry) Register(ctx context.Context, controller *Controller) bool {
	id, ok := ctx.Value(quic.ConnectionTracingKey).(uint64)
	if !ok {
		return false
	}
	r.mutex.Lock()
	r.controllers[id] = controller
	r.mutex.Unlock()
	return true
}

// Remove forgets the controller of the connection with the given context.
func (r *Registry) Remove(ctx context.Context) {
	id, ok := ctx.Value(quic.ConnectionTracingKey).(uint64)
	if !ok {
		return
	}
	r.mutex.Lock()
	delete(r.controllers, id)
	r.mutex.Unlock()
}

// Lookup returns the controller of conn, or nil.
func (r *Registry) Lookup(conn quic.Connection) *Controller {
	return r.LookupContext(conn.Context())
}

func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.controllers)
}

// LookupContext returns the controller of the connection whose context is ctx, or nil.
func (r *Registry) LookupContext(ctx context.Context) *Controller {
	id, ok := ctx.Value(quic.ConnectionTracingKey).(uint64)
	if !ok {
		return nil
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.controllers[id]
}
