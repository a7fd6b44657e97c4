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

package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a pipeline failure. It is surfaced to callers in the
// failure envelope and decides the HTTP status.
type ErrorKind string

const (
	ErrKindTransfer         ErrorKind = "transfer"
	ErrKindDecode           ErrorKind = "decode"
	ErrKindUnsupportedMedia ErrorKind = "unsupported_media"
	ErrKindModel            ErrorKind = "model"
	ErrKindPersistence      ErrorKind = "persistence"
	ErrKindNotification     ErrorKind = "notification"
	ErrKindInvocation       ErrorKind = "invocation"
	ErrKindInvalidRequest   ErrorKind = "invalid_request"
	ErrKindTrigger          ErrorKind = "trigger"
)

// StatusCode maps the kind to the HTTP status reported in envelopes.
func (k ErrorKind) StatusCode() int {
	switch k {
	case ErrKindDecode, ErrKindInvalidRequest, ErrKindTrigger:
		return http.StatusBadRequest
	case ErrKindUnsupportedMedia:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// PipelineError is the error type recorded by pipeline commands.
type PipelineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewPipelineError wraps err with a kind and the operation that failed.
func NewPipelineError(kind ErrorKind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// StatusCode is the HTTP status for this failure.
func (e *PipelineError) StatusCode() int {
	return e.Kind.StatusCode()
}

// AsPipelineError finds a *PipelineError in err's chain. Errors of any other
// type are reported as kind fallback.
func AsPipelineError(err error, fallback ErrorKind, op string) *PipelineError {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return NewPipelineError(fallback, op, err)
}
