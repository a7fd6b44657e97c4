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

// Package services wraps the managed cloud services the pipeline talks to
// behind small interfaces: object storage, the tag record store, the
// notification topic and the tagging function. Every interface has an AWS
// implementation and a Google Cloud one; the application picks one per
// concern from configuration.
package services

import (
	"context"
	"time"

	"github.com/tdontdon/fit5225/internal/core/model"
)

// ObjectStore reads and writes uploaded media.
type ObjectStore interface {
	GetObject(ctx context.Context, bucket string, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket string, key string, data []byte, contentType string) error
	// PresignGet returns a time limited GET link for the object.
	PresignGet(ctx context.Context, bucket string, key string, ttl time.Duration) (string, error)
	// PublicURL is the stable address used as the record key.
	PublicURL(bucket string, key string) string
}

// RecordStore persists Tag Records keyed by (url, type).
type RecordStore interface {
	// GetRecord returns the stored attributes as the store decoded them;
	// numbers may still be arbitrary precision. The bool is false on a miss.
	GetRecord(ctx context.Context, url string, mediaType model.MediaType) (map[string]interface{}, bool, error)
	PutRecord(ctx context.Context, record *model.TagRecord) (*model.WriteAck, error)
}

// Notification is a message announcing a newly tagged object.
type Notification struct {
	Subject string
	Message []byte
	// Tags is also attached as a structured attribute named "tag" so
	// subscribers can filter on it.
	Tags []string
}

// Notifier publishes notifications and returns the message id.
type Notifier interface {
	Publish(ctx context.Context, notification *Notification) (string, error)
}

// TaggingInvoker runs the tagging stage synchronously and returns its
// envelope.
type TaggingInvoker interface {
	Invoke(ctx context.Context, request *model.TaggingRequest) (*model.Envelope, error)
}

// TaggingHandler is the in-process form of the tagging stage.
type TaggingHandler interface {
	Handle(ctx context.Context, request *model.TaggingRequest) *model.Envelope
}
