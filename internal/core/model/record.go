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
	"encoding/json"
)

// TagRecord is one row of the tag store, keyed by (URL, Type).
type TagRecord struct {
	URL           string         `json:"url" dynamodbav:"url" bigquery:"url"`
	Type          MediaType      `json:"type" dynamodbav:"type" bigquery:"type"`
	Filename      string         `json:"filename" dynamodbav:"filename" bigquery:"filename"`
	Tags          map[string]int `json:"tags" dynamodbav:"tags" bigquery:"-"`
	ThumbnailName *string        `json:"thumbnail-name" dynamodbav:"thumbnail-name" bigquery:"thumbnail_name"`
	ThumbnailURL  *string        `json:"thumbnail-url" dynamodbav:"thumbnail-url" bigquery:"thumbnail_url"`
}

// TaggingRequest is the payload the intake stage sends to the tagging stage.
type TaggingRequest struct {
	Type          string  `json:"type" validate:"required,oneof=image video"`
	Bucket        string  `json:"bucket" validate:"required"`
	Filename      string  `json:"filename" validate:"required"`
	ThumbnailName *string `json:"thumbnail_name"`
	URL           string  `json:"url" validate:"required"`
	ThumbnailURL  *string `json:"thumbnail_url"`
}

// NewTaggingRequest builds the request for an upload that missed the cache.
func NewTaggingRequest(loc *ObjectLocation) *TaggingRequest {
	return &TaggingRequest{
		Type:          string(loc.Type),
		Bucket:        loc.Bucket,
		Filename:      loc.Key,
		ThumbnailName: loc.ThumbnailKey,
		URL:           loc.URL,
		ThumbnailURL:  loc.ThumbnailURL,
	}
}

// WriteAck is the store's acknowledgement of a successful write.
type WriteAck struct {
	Store     string `json:"store"`
	Table     string `json:"table"`
	RequestID string `json:"requestId,omitempty"`
}

// Envelope is the response shape of both stages.
type Envelope struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body"`
	Message    string            `json:"message,omitempty"`
}

// NewJSONEnvelope marshals body into an envelope with the given status.
func NewJSONEnvelope(statusCode int, body interface{}) (*Envelope, error) {
	out, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &Envelope{StatusCode: statusCode, Body: string(out)}, nil
}

// FailureBody is the body of a failure envelope.
type FailureBody struct {
	Error string    `json:"error"`
	Kind  ErrorKind `json:"kind"`
}

// NewFailureEnvelope reports err in an envelope whose status follows its kind.
func NewFailureEnvelope(err *PipelineError) *Envelope {
	out, _ := json.Marshal(FailureBody{Error: err.Error(), Kind: err.Kind})
	return &Envelope{StatusCode: err.StatusCode(), Body: string(out)}
}
