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

// Package cor (Chain of Responsibility). This file holds BaseCommand, the
// default Command implementation every pipeline step embeds.
//
// Embedding BaseCommand gives a step:
//   - a name, used as the span name, the metric prefix and the error key;
//   - CtxIn/CtxOut defaults for its input and output keys, so a BaseChain can
//     pipe one step's result into the next;
//   - a tracer, a meter and success/error counters;
//   - Succeed and Fail, which bump the counters and record the error.
//
// A concrete step only implements Execute, and IsExecutable when it needs
// more than its primary input.
package cor

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MeterName is the instrumentation scope shared by every command's counters.
const MeterName = "github.com/tdontdon/fit5225/pipeline"

// BaseCommand carries the plumbing shared by all commands: a name, the
// input/output keys used for piping, and OpenTelemetry instruments. Concrete
// commands embed it and implement Execute.
type BaseCommand struct {
	Name            string              // Span name and error key; prefixes the counters.
	InputParamName  string              // Context key of the primary input; CtxIn when empty.
	OutputParamName string              // Context key of the primary output; CtxOut when empty.
	Tracer          trace.Tracer        // Tracer named after the command.
	Meter           metric.Meter        // Meter shared by every command under MeterName.
	SuccessCounter  metric.Int64Counter // "<name>.counter.success"
	ErrorCounter    metric.Int64Counter // "<name>.counter.error"
}

// NewBaseCommand builds a BaseCommand and registers its counters on the
// global meter provider. A counter that cannot be created is logged and left
// nil; Succeed and Fail tolerate that.
//
// Inputs:
//   - name: the command name, unique within its chain.
//
// Outputs:
//   - *BaseCommand: the command, ready to embed by value.
func NewBaseCommand(name string) *BaseCommand {
	meter := otel.Meter(MeterName)

	successCounter, err := meter.Int64Counter(fmt.Sprintf("%s.counter.success", name))
	if err != nil {
		slog.Warn("failed to create success counter", "command", name, "error", err)
	}
	errorCounter, err := meter.Int64Counter(fmt.Sprintf("%s.counter.error", name))
	if err != nil {
		slog.Warn("failed to create error counter", "command", name, "error", err)
	}

	return &BaseCommand{
		Name:           name,
		Tracer:         otel.Tracer(name),
		Meter:          meter,
		SuccessCounter: successCounter,
		ErrorCounter:   errorCounter,
	}
}

// GetName returns the command name.
func (c *BaseCommand) GetName() string {
	return c.Name
}

// IsExecutable requires a Go context and a value under the input key.
func (c *BaseCommand) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil && context.Get(c.GetInputParam()) != nil
}

// GetInputParam returns InputParamName, or CtxIn when unset.
func (c *BaseCommand) GetInputParam() string {
	if len(c.InputParamName) == 0 {
		return CtxIn
	}
	return c.InputParamName
}

// GetOutputParam returns OutputParamName, or CtxOut when unset.
func (c *BaseCommand) GetOutputParam() string {
	if len(c.OutputParamName) == 0 {
		return CtxOut
	}
	return c.OutputParamName
}

func (c *BaseCommand) GetTracer() trace.Tracer {
	return c.Tracer
}

func (c *BaseCommand) GetMeter() metric.Meter {
	return c.Meter
}

func (c *BaseCommand) GetSuccessCounter() metric.Int64Counter {
	return c.SuccessCounter
}

func (c *BaseCommand) GetErrorCounter() metric.Int64Counter {
	return c.ErrorCounter
}

// Succeed bumps the success counter. Commands call it once their output is
// in the context.
func (c *BaseCommand) Succeed(context Context) {
	if c.SuccessCounter != nil {
		c.SuccessCounter.Add(context.GetContext(), 1)
	}
}

// Fail bumps the error counter and records err on the context under the
// command's name. The enclosing chain stops before the next command unless
// it continues on failure.
//
// Inputs:
//   - context: the run the failure belongs to.
//   - err: usually a *model.PipelineError so the workflow can map it to a
//     status code.
func (c *BaseCommand) Fail(context Context, err error) {
	if c.ErrorCounter != nil {
		c.ErrorCounter.Add(context.GetContext(), 1)
	}
	context.AddError(c.GetName(), err)
}
