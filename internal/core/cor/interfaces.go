// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cor (Chain of Responsibility) holds the building blocks every
// pipeline in this module is assembled from. A pipeline is a Chain of
// Commands sharing one Context: each command reads what it needs from the
// context, does one unit of work and writes its result back, either under a
// well-known key or into CtxOut so the chain can pipe it into the next
// command's CtxIn.
//
// Two ways exist to stop a chain early:
//   - AddError records a failure; the chain skips the remaining commands
//     unless it was built with ContinueOnFailure(true).
//   - Halt marks the run as complete; used when a command already produced
//     the final answer (for example a cache hit) and nothing else must run.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Keys used by BaseChain to pipe data between consecutive commands.
const (
	// CtxIn holds the primary input of the command about to run. The chain
	// fills it from the previous command's CtxOut; the workflow seeds it for
	// the first command.
	CtxIn = "__IN__"
	// CtxOut holds the primary output of the command that just ran. It is
	// cleared after every command.
	CtxOut = "__OUT__"
)

// Context is the state bag carried through one pipeline run. Besides the
// piped CtxIn/CtxOut values, commands share named results through it, such as
// the tagging request. It also tracks the errors and temporary files of the
// run.
type Context interface {
	// SetContext replaces the Go context; the chain swaps it per command so
	// that spans nest correctly.
	SetContext(ctx context.Context)

	// GetContext returns the current Go context.
	GetContext() context.Context

	// Add stores a value under key and returns the context for chaining.
	Add(key string, value interface{}) Context

	// Get returns the value stored under key, or nil.
	Get(key string) interface{}

	// Remove deletes key.
	Remove(key string)

	// AddError records err against the command named key.
	AddError(key string, err error)

	// GetErrors returns every recorded error keyed by command name.
	GetErrors() map[string]error

	// FirstError returns the first recorded error in recording order.
	FirstError() error

	// HasErrors reports whether any command recorded an error.
	HasErrors() bool

	// Halt marks the run as finished; remaining commands are skipped.
	Halt()

	// IsHalted reports whether Halt was called.
	IsHalted() bool

	// AddTempFile registers a local file to be removed by Close.
	AddTempFile(file string)

	// GetTempFiles returns the registered temporary files.
	GetTempFiles() []string

	// Close removes every registered temporary file. Callers defer it right
	// after creating the context.
	Close()
}

// Executable is anything with a unit of work to run against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is one step of a pipeline. Implementations embed BaseCommand and
// report their outcome through the Context rather than a return value.
type Command interface {
	Executable

	// GetName identifies the command in logs, spans and metric names.
	GetName() string

	// GetInputParam is the key the command reads its primary input from.
	GetInputParam() string

	// GetOutputParam is the key the command writes its primary output to.
	GetOutputParam() string

	// IsExecutable checks the preconditions for Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain runs commands in order. A Chain is itself a Command so chains nest.
type Chain interface {
	Command

	// ContinueOnFailure keeps running the remaining commands after an error.
	ContinueOnFailure(bool) Chain

	// AddCommand appends command to the sequence.
	AddCommand(command Command) Chain
}
