package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// HandlerFunc is a type-erased job handler that accepts a raw JSON payload.
// A typed Definition[T] is converted to a HandlerFunc at registration time
// by closing over JSON unmarshal, struct-tag validation, and the typed
// handler.
type HandlerFunc func(ctx *RunContext, payload []byte) error

// Registry maps job_type to a type-erased handler. Registration happens
// once during process init and the registry is treated as immutable
// thereafter; reads are still guarded in case tests register concurrently.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// New creates an empty handler registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// RegisterDefinition registers a typed job definition. The resulting
// handler unmarshals the raw payload into T, runs struct-tag validation
// over it, and only then invokes the typed handler.
//
// This is a package-level generic function because Go does not allow
// generic methods on a non-generic receiver type.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx *RunContext, payload []byte) error {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return &ValidationError{JobType: def.Name, Err: err}
			}
		}
		if err := validate.Struct(&t); err != nil {
			return &ValidationError{JobType: def.Name, Err: err}
		}
		return def.Handler(ctx, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Name] = handler
}

// Get returns the handler registered for jobType, or false if none is.
func (r *Registry) Get(jobType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Names returns every registered job_type.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// ValidationError means a payload failed to unmarshal or failed its
// struct-tag validation. It is always a permanent failure: the caller
// must dead-letter the job rather than retry, since the payload can never
// become valid on its own.
type ValidationError struct {
	JobType string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("registry: payload for job type %q failed validation: %v", e.JobType, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UnknownJobTypeError means no handler is registered for a job_type.
// Scheduling API callers see this as a configuration error; nothing is
// persisted.
type UnknownJobTypeError struct {
	JobType string
}

func (e *UnknownJobTypeError) Error() string {
	return fmt.Sprintf("registry: no handler registered for job type %q", e.JobType)
}

// Dispatcher runs a job_type's handler against a raw payload, looking the
// handler up in a Registry.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher builds a Dispatcher backed by reg.
func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{registry: reg}
}

// Dispatch looks up jobType's handler and runs it against payload. It
// returns *UnknownJobTypeError if no handler is registered, and whatever
// error (possibly *ValidationError) the handler itself returns.
func (d *Dispatcher) Dispatch(ctx context.Context, jobType string, jobID string, attempts int, payload []byte) error {
	handler, ok := d.registry.Get(jobType)
	if !ok {
		return &UnknownJobTypeError{JobType: jobType}
	}

	rc := &RunContext{Context: ctx, JobID: jobID, JobType: jobType, Attempts: attempts}
	return handler(rc, payload)
}
