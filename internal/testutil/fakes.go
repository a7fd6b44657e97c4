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

package test

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/tdontdon/fit5225/internal/core/detection"
	"github.com/tdontdon/fit5225/internal/core/model"
	"github.com/tdontdon/fit5225/internal/core/services"
)

// FakeObjectStore keeps objects in memory and serves presigned links from
// an httptest server started by Serve.
type FakeObjectStore struct {
	mu           sync.Mutex
	Objects      map[string][]byte
	ContentTypes map[string]string
	Region       string
	GetErr       error
	PutErr       error
	PresignErr   error

	// DownloadStatus overrides the status returned for presigned links.
	DownloadStatus int
	server         *httptest.Server
}

func NewFakeObjectStore() *FakeObjectStore {
	return &FakeObjectStore{
		Objects:      make(map[string][]byte),
		ContentTypes: make(map[string]string),
		Region:       "us-east-1",
	}
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

// Serve starts the download server. Callers must call Close.
func (s *FakeObjectStore) Serve() *FakeObjectStore {
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := s.DownloadStatus
		data, ok := s.Objects[strings.TrimPrefix(r.URL.Path, "/")]
		s.mu.Unlock()
		if status != 0 && status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	}))
	return s
}

func (s *FakeObjectStore) Close() {
	if s.server != nil {
		s.server.Close()
	}
}

func (s *FakeObjectStore) Put(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Objects[objectKey(bucket, key)] = data
}

func (s *FakeObjectStore) Has(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Objects[objectKey(bucket, key)]
	return ok
}

func (s *FakeObjectStore) GetObject(_ context.Context, bucket string, key string) ([]byte, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.Objects[objectKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return data, nil
}

func (s *FakeObjectStore) PutObject(_ context.Context, bucket string, key string, data []byte, contentType string) error {
	if s.PutErr != nil {
		return s.PutErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Objects[objectKey(bucket, key)] = data
	s.ContentTypes[objectKey(bucket, key)] = contentType
	return nil
}

func (s *FakeObjectStore) PresignGet(_ context.Context, bucket string, key string, _ time.Duration) (string, error) {
	if s.PresignErr != nil {
		return "", s.PresignErr
	}
	if s.server == nil {
		return "", fmt.Errorf("fake object store is not serving")
	}
	return s.server.URL + "/" + objectKey(bucket, key), nil
}

func (s *FakeObjectStore) PublicURL(bucket string, key string) string {
	return model.ObjectURL(bucket, s.Region, key)
}

// FakeRecordStore keeps records in memory keyed by url and type. Stored
// records are returned exactly as they were seeded with Seed.
type FakeRecordStore struct {
	mu      sync.Mutex
	Records map[string]map[string]interface{}
	Writes  []*model.TagRecord
	Reads   int
	GetErr  error
	PutErr  error
}

func NewFakeRecordStore() *FakeRecordStore {
	return &FakeRecordStore{Records: make(map[string]map[string]interface{})}
}

func recordKey(url string, mediaType model.MediaType) string {
	return url + "|" + string(mediaType)
}

func (s *FakeRecordStore) Seed(url string, mediaType model.MediaType, record map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records[recordKey(url, mediaType)] = record
}

func (s *FakeRecordStore) GetRecord(_ context.Context, url string, mediaType model.MediaType) (map[string]interface{}, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads++
	if s.GetErr != nil {
		return nil, false, s.GetErr
	}
	record, ok := s.Records[recordKey(url, mediaType)]
	return record, ok, nil
}

func (s *FakeRecordStore) PutRecord(_ context.Context, record *model.TagRecord) (*model.WriteAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return nil, s.PutErr
	}
	s.Writes = append(s.Writes, record)
	tags := make(map[string]interface{}, len(record.Tags))
	for k, v := range record.Tags {
		tags[k] = v
	}
	s.Records[recordKey(record.URL, record.Type)] = map[string]interface{}{
		"url":      record.URL,
		"type":     string(record.Type),
		"filename": record.Filename,
		"tags":     tags,
	}
	return &model.WriteAck{Store: "memory", Table: "BirdDatabase", RequestID: fmt.Sprintf("req-%d", len(s.Writes))}, nil
}

// FakeNotifier records every published notification.
type FakeNotifier struct {
	mu        sync.Mutex
	Published []*services.Notification
	Err       error
}

func (n *FakeNotifier) Publish(_ context.Context, notification *services.Notification) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return "", n.Err
	}
	n.Published = append(n.Published, notification)
	return fmt.Sprintf("msg-%d", len(n.Published)), nil
}

// FakeInvoker records tagging requests and answers with Envelope, or with
// Handler when set.
type FakeInvoker struct {
	mu       sync.Mutex
	Requests []*model.TaggingRequest
	Envelope *model.Envelope
	Handler  services.TaggingHandler
	Err      error
}

func (i *FakeInvoker) Invoke(ctx context.Context, request *model.TaggingRequest) (*model.Envelope, error) {
	i.mu.Lock()
	i.Requests = append(i.Requests, request)
	i.mu.Unlock()
	if i.Err != nil {
		return nil, i.Err
	}
	if i.Handler != nil {
		return i.Handler.Handle(ctx, request), nil
	}
	return i.Envelope, nil
}

// FixedModel returns the same predictions for every frame.
type FixedModel struct {
	Labels      map[int]string
	Predictions []detection.Prediction
	Calls       int
}

func (m *FixedModel) Names() map[int]string {
	return m.Labels
}

func (m *FixedModel) Predict(_ context.Context, _ image.Image) ([]detection.Prediction, error) {
	m.Calls++
	return m.Predictions, nil
}

// BirdModel detects two robins and a jay in every frame.
func BirdModel() *FixedModel {
	return &FixedModel{
		Labels: map[int]string{0: "Robin", 1: "Jay", 2: "Crow"},
		Predictions: []detection.Prediction{
			{ClassID: 0, Confidence: 0.91},
			{ClassID: 0, Confidence: 0.77},
			{ClassID: 1, Confidence: 0.64},
			{ClassID: 2, Confidence: 0.31},
		},
	}
}

// FixedLoader always loads m.
func FixedLoader(m detection.Model) detection.Loader {
	return detection.LoaderFunc(func(context.Context, string) (detection.Model, error) {
		return m, nil
	})
}

// FakeFrames stands in for a video capture yielding Total blank frames.
type FakeFrames struct {
	Total  int
	Opened []string
	Read   int
	Closed bool
}

func (f *FakeFrames) Open(_ context.Context, path string) (detection.FrameSource, error) {
	f.Opened = append(f.Opened, path)
	f.Read, f.Closed = 0, false
	return f, nil
}

func (f *FakeFrames) FrameCount() int {
	return f.Total
}

func (f *FakeFrames) Next() (image.Image, error) {
	if f.Read >= f.Total {
		return nil, io.EOF
	}
	f.Read++
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (f *FakeFrames) Close() error {
	f.Closed = true
	return nil
}

// FakeTaggingHandler answers every request with 200 and records it.
type FakeTaggingHandler struct {
	Requests []*model.TaggingRequest
}

func (h *FakeTaggingHandler) Handle(_ context.Context, request *model.TaggingRequest) *model.Envelope {
	h.Requests = append(h.Requests, request)
	return &model.Envelope{StatusCode: http.StatusOK, Body: `{"store":"memory"}`}
}
