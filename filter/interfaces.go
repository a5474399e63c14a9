package filter

import (
	"context"

	"github.com/s0up4200/cupid/cupid"
)

// Filter decides whether a user matches
type Filter interface {
	Match(user cupid.User) (bool, error)
}

// CompiledFilter is a filter that has been compiled once and can be
// evaluated many times
type CompiledFilter interface {
	Filter

	// Expression returns the source expression
	Expression() string
}

// Compiler compiles filter expressions
type Compiler interface {
	Compile(expression string) (CompiledFilter, error)
}

// CachingCompiler is a Compiler that keeps compiled filters around
type CachingCompiler interface {
	Compiler

	// Clear removes all cached filters
	Clear()

	// Size returns the number of cached filters
	Size() int
}

// Evaluator applies a filter to a batch of users
type Evaluator interface {
	Evaluate(ctx context.Context, filter CompiledFilter, users []cupid.User) ([]cupid.User, error)
}

// WorkerPool runs submitted work with bounded concurrency
type WorkerPool interface {
	Submit(work func()) error
	Stop(ctx context.Context) error
}
