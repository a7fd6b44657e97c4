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

package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/aws/aws-lambda-go/events"

	"github.com/tdontdon/fit5225/internal/cloud"
	"github.com/tdontdon/fit5225/internal/core/cor"
	"github.com/tdontdon/fit5225/internal/core/model"
)

// UploadTriggerReader turns the raw trigger into a model.UploadEvent. It
// accepts an S3 event (as a value or as JSON) and a Cloud Storage Pub/Sub
// notification (as JSON). Only the first record of an S3 event is used.
type UploadTriggerReader struct {
	cor.BaseCommand
}

func NewUploadTriggerReader(name string) *UploadTriggerReader {
	return &UploadTriggerReader{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *UploadTriggerReader) Execute(context cor.Context) {
	event, err := ReadUploadTrigger(context.Get(c.GetInputParam()))
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindTrigger, c.GetName(), err))
		return
	}
	slog.InfoContext(context.GetContext(), "upload received", "bucket", event.Bucket, "key", event.Key, "region", event.Region)
	c.Succeed(context)
	context.Add(ParamUploadEvent, event)
	context.Add(c.GetOutputParam(), event)
}

// ReadUploadTrigger decodes the supported trigger shapes.
func ReadUploadTrigger(in interface{}) (*model.UploadEvent, error) {
	switch t := in.(type) {
	case *model.UploadEvent:
		return t, nil
	case events.S3Event:
		return fromS3Event(&t)
	case *events.S3Event:
		return fromS3Event(t)
	case string:
		return decodeTrigger([]byte(t))
	case []byte:
		return decodeTrigger(t)
	case json.RawMessage:
		return decodeTrigger(t)
	}
	return nil, fmt.Errorf("unsupported trigger type %T", in)
}

func decodeTrigger(data []byte) (*model.UploadEvent, error) {
	var probe struct {
		Records json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger: %w", err)
	}
	if len(probe.Records) > 0 {
		var s3Event events.S3Event
		if err := json.Unmarshal(data, &s3Event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal S3 event: %w", err)
		}
		return fromS3Event(&s3Event)
	}

	var notification cloud.GCSPubSubNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		return nil, fmt.Errorf("failed to unmarshal GCS notification: %w", err)
	}
	if notification.Bucket == "" || notification.Name == "" {
		return nil, errors.New("trigger has neither S3 records nor a GCS object")
	}
	return &model.UploadEvent{Bucket: notification.Bucket, Key: notification.Name}, nil
}

func fromS3Event(event *events.S3Event) (*model.UploadEvent, error) {
	if len(event.Records) == 0 {
		return nil, errors.New("S3 event has no records")
	}
	record := event.Records[0]
	key, err := url.QueryUnescape(record.S3.Object.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid object key %q: %w", record.S3.Object.Key, err)
	}
	if record.S3.Bucket.Name == "" || key == "" {
		return nil, errors.New("S3 event record is missing bucket or key")
	}
	return &model.UploadEvent{Bucket: record.S3.Bucket.Name, Key: key, Region: record.AWSRegion}, nil
}
