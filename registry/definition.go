// Package registry implements the type-indexed handler table jobs dispatch
// through: a job_type maps to a payload schema and a typed run function,
// registered once at process init and treated as immutable thereafter.
package registry

import "context"

// RunContext is passed to every handler invocation. It carries the
// cancellation context and the job's identity and attempt count only; it
// does not carry a clock, an error reporter, the scheduling API or any
// external collaborator, so a handler that needs them holds them itself
// (as handlers.Deps does).
type RunContext struct {
	context.Context

	JobID    string
	JobType  string
	Attempts int
}

// Definition is a typed job definition: a payload type T, a handler
// closing over that type, and validator tags driving schema checks.
type Definition[T any] struct {
	// Name is the job_type this definition answers to.
	Name string

	// Handler processes a validated payload.
	Handler func(ctx *RunContext, payload T) error
}

// NewDefinition builds a typed job definition.
func NewDefinition[T any](name string, handler func(ctx *RunContext, payload T) error) *Definition[T] {
	return &Definition[T]{Name: name, Handler: handler}
}
