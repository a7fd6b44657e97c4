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

package workflow_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdontdon/fit5225/internal/cloud"
	"github.com/tdontdon/fit5225/internal/core/detection"
	"github.com/tdontdon/fit5225/internal/core/model"
	"github.com/tdontdon/fit5225/internal/core/workflow"
	test "github.com/tdontdon/fit5225/internal/testutil"
)

const birdURL = "https://b.s3.us-east-1.amazonaws.com/bird.jpg"

type fixture struct {
	config   *cloud.Config
	objects  *test.FakeObjectStore
	records  *test.FakeRecordStore
	notifier *test.FakeNotifier
	model    *test.FixedModel
	clients  *cloud.ServiceClients
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		config:   test.GetConfig(),
		objects:  test.NewFakeObjectStore().Serve(),
		records:  test.NewFakeRecordStore(),
		notifier: &test.FakeNotifier{},
		model:    test.BirdModel(),
	}
	t.Cleanup(f.objects.Close)
	f.clients = &cloud.ServiceClients{
		ObjectStore: f.objects,
		RecordStore: f.records,
		Notifier:    f.notifier,
		HTTPClient:  http.DefaultClient,
		Detector:    detection.NewDetector(test.FixedLoader(f.model), nil, detection.Options{ModelPath: "model.pt"}),
	}
	return f
}

// pipeline wires intake to an in-process tagging stage.
func (f *fixture) pipeline() *workflow.IntakeWorkflow {
	f.clients.UseLocalTagging(workflow.NewTaggingWorkflow(f.config, f.clients))
	return workflow.NewIntakeWorkflow(f.config, f.clients)
}

func jpegBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func decodeFailure(t *testing.T, envelope *model.Envelope) model.FailureBody {
	t.Helper()
	var body model.FailureBody
	require.NoError(t, json.Unmarshal([]byte(envelope.Body), &body))
	return body
}

func TestIntakeTagsNewImage(t *testing.T) {
	f := newFixture(t)
	f.objects.Put("b", "bird.jpg", jpegBytes(t, 64, 32))

	envelope := f.pipeline().Handle(context.Background(), test.GetTestS3EventText())

	require.Equal(t, http.StatusOK, envelope.StatusCode, envelope.Body)
	assert.Equal(t, workflow.CORSHeaders, envelope.Headers)

	var tagging model.Envelope
	require.NoError(t, json.Unmarshal([]byte(envelope.Body), &tagging))
	assert.Equal(t, http.StatusOK, tagging.StatusCode)
	var ack model.WriteAck
	require.NoError(t, json.Unmarshal([]byte(tagging.Body), &ack))
	assert.Equal(t, "memory", ack.Store)

	thumbnail, err := f.objects.GetObject(context.Background(), "b", "bird-thumb.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", f.objects.ContentTypes["b/bird-thumb.jpg"])
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(thumbnail))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 16, cfg.Height)

	require.Len(t, f.records.Writes, 1)
	record := f.records.Writes[0]
	assert.Equal(t, birdURL, record.URL)
	assert.Equal(t, model.MediaTypeImage, record.Type)
	assert.Equal(t, "bird.jpg", record.Filename)
	assert.Equal(t, map[string]int{"robin": 2, "jay": 1}, record.Tags)
	require.NotNil(t, record.ThumbnailName)
	assert.Equal(t, "bird-thumb.jpg", *record.ThumbnailName)
	require.NotNil(t, record.ThumbnailURL)
	assert.Equal(t, "https://b.s3.us-east-1.amazonaws.com/bird-thumb.jpg", *record.ThumbnailURL)

	require.Len(t, f.notifier.Published, 1)
	published := f.notifier.Published[0]
	assert.Equal(t, "New Bird Insert", published.Subject)
	assert.Equal(t, []string{"jay", "robin"}, published.Tags)
	assert.JSONEq(t, `{"url":"`+birdURL+`","tags":["jay","robin"]}`, string(published.Message))
}

func TestIntakeReturnsCachedRecord(t *testing.T) {
	f := newFixture(t)
	invoker := &test.FakeInvoker{}
	f.clients.TaggingInvoker = invoker
	f.records.Seed(birdURL, model.MediaTypeImage, map[string]interface{}{
		"url":  birdURL,
		"type": "image",
		"tags": map[string]interface{}{"robin": decimal.NewFromInt(2), "jay": decimal.RequireFromString("1.5")},
	})

	envelope := workflow.NewIntakeWorkflow(f.config, f.clients).Handle(context.Background(), test.GetTestS3EventText())

	require.Equal(t, http.StatusOK, envelope.StatusCode)
	assert.Equal(t, workflow.CachedRecordMessage, envelope.Message)
	assert.JSONEq(t, `{"url":"`+birdURL+`","type":"image","tags":{"robin":2,"jay":1.5}}`, envelope.Body)
	assert.Empty(t, invoker.Requests)
	assert.Empty(t, f.records.Writes)
	assert.False(t, f.objects.Has("b", "bird-thumb.jpg"))
}

func TestIntakeRejectsUnsupportedExtension(t *testing.T) {
	f := newFixture(t)
	event := `{"Records":[{"awsRegion":"us-east-1","s3":{"bucket":{"name":"b"},"object":{"key":"notes.txt"}}}]}`

	envelope := f.pipeline().Handle(context.Background(), event)

	assert.Equal(t, http.StatusUnsupportedMediaType, envelope.StatusCode)
	assert.Equal(t, model.ErrKindUnsupportedMedia, decodeFailure(t, envelope).Kind)
	assert.Equal(t, workflow.CORSHeaders, envelope.Headers)
	assert.Zero(t, f.records.Reads)
	assert.Empty(t, f.records.Writes)
}

func TestIntakeDecodeFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	invoker := &test.FakeInvoker{}
	f.clients.TaggingInvoker = invoker
	f.objects.Put("b", "bird.jpg", []byte("definitely not a jpeg"))

	envelope := workflow.NewIntakeWorkflow(f.config, f.clients).Handle(context.Background(), test.GetTestS3EventText())

	assert.Equal(t, http.StatusBadRequest, envelope.StatusCode)
	assert.Equal(t, model.ErrKindDecode, decodeFailure(t, envelope).Kind)
	assert.Empty(t, invoker.Requests)
	assert.Empty(t, f.records.Writes)
	assert.False(t, f.objects.Has("b", "bird-thumb.jpg"))
}

func TestIntakeInvocationFailure(t *testing.T) {
	f := newFixture(t)
	f.clients.TaggingInvoker = &test.FakeInvoker{Err: errors.New("function timed out")}
	f.objects.Put("b", "bird.jpg", jpegBytes(t, 16, 16))

	envelope := workflow.NewIntakeWorkflow(f.config, f.clients).Handle(context.Background(), test.GetTestS3EventText())

	assert.Equal(t, http.StatusInternalServerError, envelope.StatusCode)
	assert.Equal(t, model.ErrKindInvocation, decodeFailure(t, envelope).Kind)
}

func TestIntakeVideoFromStorageNotification(t *testing.T) {
	f := newFixture(t)
	invoker := &test.FakeInvoker{Envelope: &model.Envelope{StatusCode: http.StatusOK, Body: `{"store":"memory"}`}}
	f.clients.TaggingInvoker = invoker

	envelope := workflow.NewIntakeWorkflow(f.config, f.clients).Handle(context.Background(), []byte(test.GetTestGCSMessageText()))

	require.Equal(t, http.StatusOK, envelope.StatusCode, envelope.Body)
	require.Len(t, invoker.Requests, 1)
	request := invoker.Requests[0]
	assert.Equal(t, "video", request.Type)
	assert.Equal(t, "media_uploads", request.Bucket)
	assert.Equal(t, "clips/robin-001.mp4", request.Filename)
	assert.Equal(t, f.objects.PublicURL("media_uploads", "clips/robin-001.mp4"), request.URL)
	assert.Nil(t, request.ThumbnailName)
	assert.Nil(t, request.ThumbnailURL)
	assert.JSONEq(t, `{"statusCode":200,"body":"{\"store\":\"memory\"}"}`, envelope.Body)
}

func TestIntakeRejectsUnreadableTrigger(t *testing.T) {
	f := newFixture(t)

	envelope := f.pipeline().Handle(context.Background(), "{not json")

	assert.Equal(t, http.StatusBadRequest, envelope.StatusCode)
	assert.Equal(t, model.ErrKindTrigger, decodeFailure(t, envelope).Kind)
}

func birdRequest(f *fixture) *model.TaggingRequest {
	thumb := "bird-thumb.jpg"
	thumbURL := "https://b.s3.us-east-1.amazonaws.com/bird-thumb.jpg"
	return &model.TaggingRequest{
		Type:          "image",
		Bucket:        "b",
		Filename:      "bird.jpg",
		ThumbnailName: &thumb,
		URL:           birdURL,
		ThumbnailURL:  &thumbURL,
	}
}

func TestTaggingDownloadFailure(t *testing.T) {
	f := newFixture(t)
	f.objects.Put("b", "bird.jpg", jpegBytes(t, 16, 16))
	f.objects.DownloadStatus = http.StatusForbidden

	envelope := workflow.NewTaggingWorkflow(f.config, f.clients).Handle(context.Background(), birdRequest(f))

	assert.Equal(t, http.StatusInternalServerError, envelope.StatusCode)
	assert.Equal(t, model.ErrKindTransfer, decodeFailure(t, envelope).Kind)
	assert.Empty(t, f.records.Writes)
	assert.Empty(t, f.notifier.Published)
}

func TestTaggingRejectsInvalidRequest(t *testing.T) {
	f := newFixture(t)
	request := birdRequest(f)
	request.Type = "audio"

	envelope := workflow.NewTaggingWorkflow(f.config, f.clients).Handle(context.Background(), request)

	assert.Equal(t, http.StatusBadRequest, envelope.StatusCode)
	assert.Equal(t, model.ErrKindInvalidRequest, decodeFailure(t, envelope).Kind)

	envelope = workflow.NewTaggingWorkflow(f.config, f.clients).Handle(context.Background(), nil)
	assert.Equal(t, http.StatusBadRequest, envelope.StatusCode)
}

func TestTaggingNotificationFailureAfterWrite(t *testing.T) {
	f := newFixture(t)
	f.objects.Put("b", "bird.jpg", jpegBytes(t, 16, 16))
	f.notifier.Err = errors.New("topic not found")

	envelope := workflow.NewTaggingWorkflow(f.config, f.clients).Handle(context.Background(), birdRequest(f))

	assert.Equal(t, http.StatusInternalServerError, envelope.StatusCode)
	assert.Equal(t, model.ErrKindNotification, decodeFailure(t, envelope).Kind)
	assert.Len(t, f.records.Writes, 1)
}

func TestTaggingWithoutTopic(t *testing.T) {
	f := newFixture(t)
	f.objects.Put("b", "bird.jpg", jpegBytes(t, 16, 16))
	f.clients.Notifier = nil

	envelope := workflow.NewTaggingWorkflow(f.config, f.clients).Handle(context.Background(), birdRequest(f))

	require.Equal(t, http.StatusOK, envelope.StatusCode, envelope.Body)
	assert.Len(t, f.records.Writes, 1)
	assert.Empty(t, f.notifier.Published)
}

func TestTaggingPersistsEmptyTagsWhenDetectionFails(t *testing.T) {
	f := newFixture(t)
	f.objects.Put("b", "bird.jpg", jpegBytes(t, 16, 16))
	f.clients.Detector = detection.NewDetector(detection.LoaderFunc(func(context.Context, string) (detection.Model, error) {
		return nil, errors.New("model.pt: no such file")
	}), nil, detection.Options{ModelPath: "model.pt"})

	envelope := workflow.NewTaggingWorkflow(f.config, f.clients).Handle(context.Background(), birdRequest(f))

	require.Equal(t, http.StatusOK, envelope.StatusCode, envelope.Body)
	require.Len(t, f.records.Writes, 1)
	assert.Empty(t, f.records.Writes[0].Tags)
	require.Len(t, f.notifier.Published, 1)
	assert.Empty(t, f.notifier.Published[0].Tags)
}

func TestTaggingVideoSamplesFrames(t *testing.T) {
	f := newFixture(t)
	f.objects.Put("b", "clips/robin.mp4", []byte("not decoded by the fake capture"))
	frames := &test.FakeFrames{Total: 20}
	f.clients.Detector = detection.NewDetector(test.FixedLoader(f.model), frames, detection.Options{ModelPath: "model.pt"})
	request := &model.TaggingRequest{
		Type:     "video",
		Bucket:   "b",
		Filename: "clips/robin.mp4",
		URL:      "https://b.s3.us-east-1.amazonaws.com/clips/robin.mp4",
	}

	envelope := workflow.NewTaggingWorkflow(f.config, f.clients).Handle(context.Background(), request)

	require.Equal(t, http.StatusOK, envelope.StatusCode, envelope.Body)
	require.Len(t, frames.Opened, 1)
	assert.Equal(t, ".mp4", filepath.Ext(frames.Opened[0]))
	assert.True(t, frames.Closed)
	// 20 frames over 10 samples gives a stride of 2.
	assert.Equal(t, 10, f.model.Calls)

	require.Len(t, f.records.Writes, 1)
	record := f.records.Writes[0]
	assert.Equal(t, model.MediaTypeVideo, record.Type)
	assert.Equal(t, map[string]int{"robin": 20, "jay": 10}, record.Tags)
	assert.Nil(t, record.ThumbnailName)
	assert.Nil(t, record.ThumbnailURL)

	require.Len(t, f.notifier.Published, 1)
	assert.Equal(t, []string{"jay", "robin"}, f.notifier.Published[0].Tags)
}

func TestTaggingRemovesTemporaryFile(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	f := newFixture(t)
	f.objects.Put("b", "bird.jpg", jpegBytes(t, 16, 16))

	envelope := workflow.NewTaggingWorkflow(f.config, f.clients).Handle(context.Background(), birdRequest(f))

	require.Equal(t, http.StatusOK, envelope.StatusCode, envelope.Body)
	assert.Equal(t, 1, f.model.Calls)
	left, err := filepath.Glob(filepath.Join(tmp, "tagging-*"))
	require.NoError(t, err)
	assert.Empty(t, left)
	_, err = os.Stat(tmp)
	assert.NoError(t, err)
}
