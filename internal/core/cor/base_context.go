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

// Package cor (Chain of Responsibility). This file holds BaseContext, the
// map-backed Context used by every workflow. A BaseContext belongs to one
// run and is not safe for concurrent use; commands in a chain run one after
// another.
package cor

import (
	"context"
	"errors"
	"log/slog"
	"os"
)

// BaseContext is the default Context: a data map, the errors recorded by
// commands (kept in recording order as well as by name), the halt flag and
// the temporary files to clean up.
type BaseContext struct {
	data       map[string]interface{}
	errors     map[string]error
	errorOrder []string
	halted     bool
	tempFiles  []string
	context    context.Context
}

// NewBaseContext returns an empty context.
//
// Outputs:
//   - Context: an empty state bag. Call SetContext before running a chain
//     and defer Close so temporary files are removed.
func NewBaseContext() Context {
	return &BaseContext{
		data:      make(map[string]interface{}),
		errors:    make(map[string]error),
		tempFiles: make([]string, 0),
	}
}

func (c *BaseContext) SetContext(ctx context.Context) {
	c.context = ctx
}

func (c *BaseContext) GetContext() context.Context {
	return c.context
}

// Close removes the registered temporary files. Files already gone are
// ignored.
func (c *BaseContext) Close() {
	for _, file := range c.tempFiles {
		if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove temporary file", "file", file, "error", err)
		}
	}
	c.tempFiles = c.tempFiles[:0]
}

func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

func (c *BaseContext) AddTempFile(file string) {
	c.tempFiles = append(c.tempFiles, file)
}

func (c *BaseContext) GetTempFiles() []string {
	return c.tempFiles
}

// AddError records err for the command named key. Re-recording a key
// replaces the error but keeps its original position for FirstError.
func (c *BaseContext) AddError(key string, err error) {
	if _, seen := c.errors[key]; !seen {
		c.errorOrder = append(c.errorOrder, key)
	}
	c.errors[key] = err
}

func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

func (c *BaseContext) FirstError() error {
	if len(c.errorOrder) == 0 {
		return nil
	}
	return c.errors[c.errorOrder[0]]
}

func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}

func (c *BaseContext) Halt() {
	c.halted = true
}

func (c *BaseContext) IsHalted() bool {
	return c.halted
}
