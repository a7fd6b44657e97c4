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

package commands_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdontdon/fit5225/internal/core/commands"
	"github.com/tdontdon/fit5225/internal/core/cor"
	"github.com/tdontdon/fit5225/internal/core/detection"
	"github.com/tdontdon/fit5225/internal/core/model"
	test "github.com/tdontdon/fit5225/internal/testutil"
)

func run(command cor.Command, in interface{}, extra map[string]interface{}) cor.Context {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	chCtx.Add(cor.CtxIn, in)
	for k, v := range extra {
		chCtx.Add(k, v)
	}
	command.Execute(chCtx)
	return chCtx
}

func failureKind(t *testing.T, chCtx cor.Context) model.ErrorKind {
	t.Helper()
	require.True(t, chCtx.HasErrors())
	return model.AsPipelineError(chCtx.FirstError(), "", "").Kind
}

func TestReadUploadTriggerDecodesKey(t *testing.T) {
	event := events.S3Event{Records: []events.S3EventRecord{{
		AWSRegion: "ap-southeast-2",
		S3: events.S3Entity{
			Bucket: events.S3Bucket{Name: "birds"},
			Object: events.S3Object{Key: "uploads/my+bird%21.JPG"},
		},
	}}}

	upload, err := commands.ReadUploadTrigger(event)
	require.NoError(t, err)
	assert.Equal(t, &model.UploadEvent{Bucket: "birds", Key: "uploads/my bird!.JPG", Region: "ap-southeast-2"}, upload)

	upload, err = commands.ReadUploadTrigger(test.GetTestS3EventText())
	require.NoError(t, err)
	assert.Equal(t, "bird.jpg", upload.Key)
	assert.Equal(t, "us-east-1", upload.Region)

	upload, err = commands.ReadUploadTrigger([]byte(test.GetTestGCSMessageText()))
	require.NoError(t, err)
	assert.Equal(t, &model.UploadEvent{Bucket: "media_uploads", Key: "clips/robin-001.mp4"}, upload)
}

func TestReadUploadTriggerRejects(t *testing.T) {
	for name, in := range map[string]interface{}{
		"empty records": `{"Records":[]}`,
		"no object":     `{"kind":"storage#object"}`,
		"bad json":      "{",
		"bad type":      42,
		"empty event":   events.S3Event{},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := commands.ReadUploadTrigger(in)
			assert.Error(t, err)
		})
	}

	chCtx := run(commands.NewUploadTriggerReader("reader"), "{", nil)
	assert.Equal(t, model.ErrKindTrigger, failureKind(t, chCtx))
}

func TestMediaClassifierUsesEventRegion(t *testing.T) {
	fallback := func(bucket, key string) string { return "gs://" + bucket + "/" + key }
	classifier := commands.NewMediaClassifier("classifier", fallback)

	chCtx := run(classifier, &model.UploadEvent{Bucket: "b", Key: "bird.jpg", Region: "us-east-1"}, nil)
	loc := chCtx.Get(commands.ParamObjectLocation).(*model.ObjectLocation)
	assert.Equal(t, "https://b.s3.us-east-1.amazonaws.com/bird.jpg", loc.URL)

	chCtx = run(classifier, &model.UploadEvent{Bucket: "b", Key: "clip.MOV"}, nil)
	loc = chCtx.Get(commands.ParamObjectLocation).(*model.ObjectLocation)
	assert.Equal(t, "gs://b/clip.MOV", loc.URL)
	assert.Equal(t, model.MediaTypeVideo, loc.Type)

	chCtx = run(classifier, &model.UploadEvent{Bucket: "b", Key: "song.mp3"}, nil)
	assert.Equal(t, model.ErrKindUnsupportedMedia, failureKind(t, chCtx))
}

func TestRecordCacheLookup(t *testing.T) {
	store := test.NewFakeRecordStore()
	loc, err := model.Locate("b", "bird.jpg", model.RegionalURL("us-east-1"))
	require.NoError(t, err)
	lookup := commands.NewRecordCacheLookup("lookup", store)

	chCtx := run(lookup, loc, nil)
	assert.False(t, chCtx.IsHalted())
	assert.Equal(t, loc, chCtx.Get(cor.CtxOut))

	store.Seed(loc.URL, loc.Type, map[string]interface{}{"tags": map[string]interface{}{"robin": decimal.NewFromInt(3)}})
	chCtx = run(lookup, loc, nil)
	assert.True(t, chCtx.IsHalted())
	assert.Nil(t, chCtx.Get(cor.CtxOut))
	assert.Equal(t, map[string]interface{}{"tags": map[string]interface{}{"robin": int64(3)}}, chCtx.Get(commands.ParamCachedRecord))

	store.GetErr = errors.New("throttled")
	chCtx = run(lookup, loc, nil)
	assert.Equal(t, model.ErrKindPersistence, failureKind(t, chCtx))
}

func TestCreateThumbnail(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 101, 40)), nil))

	out, err := commands.CreateThumbnail(buf.Bytes(), 0.5)
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 20, cfg.Height)

	_, err = commands.CreateThumbnail([]byte("plain text"), 0.5)
	assert.Error(t, err)
}

func TestThumbnailCreatorSkipsVideo(t *testing.T) {
	store := test.NewFakeObjectStore()
	loc, err := model.Locate("b", "clip.mp4", model.RegionalURL("us-east-1"))
	require.NoError(t, err)

	chCtx := run(commands.NewThumbnailCreator("thumbnail", store, 0), loc, nil)
	assert.False(t, chCtx.HasErrors())
	assert.Equal(t, loc, chCtx.Get(cor.CtxOut))
	assert.Empty(t, store.Objects)
}

func TestThumbnailCreatorMissingObject(t *testing.T) {
	store := test.NewFakeObjectStore()
	loc, err := model.Locate("b", "bird.png", model.RegionalURL("us-east-1"))
	require.NoError(t, err)

	chCtx := run(commands.NewThumbnailCreator("thumbnail", store, 0.5), loc, nil)
	assert.Equal(t, model.ErrKindTransfer, failureKind(t, chCtx))
}

func TestTaggingRequestValidator(t *testing.T) {
	validator := commands.NewTaggingRequestValidator("validator")
	valid := &model.TaggingRequest{Type: "video", Bucket: "b", Filename: "clip.mp4", URL: "https://b/clip.mp4"}

	chCtx := run(validator, valid, nil)
	assert.False(t, chCtx.HasErrors())
	assert.Equal(t, valid, chCtx.Get(commands.ParamTaggingRequest))

	chCtx = run(validator, &model.TaggingRequest{Type: "image", Bucket: "b"}, nil)
	assert.Equal(t, model.ErrKindInvalidRequest, failureKind(t, chCtx))
}

func TestMediaDetectorThreshold(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil))
	path := filepath.Join(t.TempDir(), "bird.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	request := &model.TaggingRequest{Type: "image", Bucket: "b", Filename: "bird.jpg", URL: "u"}
	detector := detection.NewDetector(test.FixedLoader(test.BirdModel()), nil, detection.Options{ModelPath: "model.pt"})
	extra := map[string]interface{}{commands.ParamTaggingRequest: request}

	chCtx := run(commands.NewMediaDetector("detector", detector, 0), path, extra)
	result := chCtx.Get(commands.ParamDetectionResult).(*detection.Result)
	assert.Equal(t, map[string]int{"Robin": 2, "Jay": 1, "Crow": 1}, result.Counts)

	chCtx = run(commands.NewMediaDetector("detector", detector, detection.DefaultConfidenceThreshold), path, extra)
	result = chCtx.Get(commands.ParamDetectionResult).(*detection.Result)
	assert.Equal(t, map[string]int{"Robin": 2, "Jay": 1}, result.Counts)
}

func TestTagRecordBuilderLowercases(t *testing.T) {
	request := &model.TaggingRequest{Type: "image", Bucket: "b", Filename: "bird.jpg", URL: "u"}
	result := &detection.Result{Counts: map[string]int{"Robin": 2, "robin": 1, "Jay": 1}}

	chCtx := run(commands.NewTagRecordBuilder("builder"), result, map[string]interface{}{commands.ParamTaggingRequest: request})
	record := chCtx.Get(commands.ParamTagRecord).(*model.TagRecord)
	assert.Equal(t, map[string]int{"robin": 3, "jay": 1}, record.Tags)
	assert.Equal(t, model.MediaTypeImage, record.Type)
	assert.Nil(t, record.ThumbnailName)
}

func TestTagRecordPersister(t *testing.T) {
	store := test.NewFakeRecordStore()
	record := &model.TagRecord{URL: "u", Type: model.MediaTypeVideo, Tags: map[string]int{}}

	chCtx := run(commands.NewTagRecordPersister("persister", store), record, nil)
	require.False(t, chCtx.HasErrors())
	assert.Equal(t, "req-1", chCtx.Get(commands.ParamWriteAck).(*model.WriteAck).RequestID)

	store.PutErr = errors.New("conditional check failed")
	chCtx = run(commands.NewTagRecordPersister("persister", store), record, nil)
	assert.Equal(t, model.ErrKindPersistence, failureKind(t, chCtx))
}

func TestTagNotifier(t *testing.T) {
	record := &model.TagRecord{URL: "u", Tags: map[string]int{"robin": 2, "jay,juvenile": 1}}

	chCtx := run(commands.NewTagNotifier("notifier", nil, ""), record, nil)
	assert.False(t, chCtx.HasErrors())
	assert.Nil(t, chCtx.Get(commands.ParamNotificationID))

	notifier := &test.FakeNotifier{}
	chCtx = run(commands.NewTagNotifier("notifier", notifier, ""), record, nil)
	require.False(t, chCtx.HasErrors())
	assert.Equal(t, "msg-1", chCtx.Get(commands.ParamNotificationID))
	require.Len(t, notifier.Published, 1)
	assert.Equal(t, commands.DefaultNotificationSubject, notifier.Published[0].Subject)
	assert.Equal(t, []string{"jay", "robin"}, notifier.Published[0].Tags)
	assert.Equal(t, `{"url":"u","tags":["jay","robin"]}`, string(notifier.Published[0].Message))
}

func TestTaggingInvocation(t *testing.T) {
	loc, err := model.Locate("b", "bird.jpg", model.RegionalURL("us-east-1"))
	require.NoError(t, err)
	invoker := &test.FakeInvoker{Envelope: &model.Envelope{StatusCode: 500, Body: `{"error":"x","kind":"model"}`}}

	chCtx := run(commands.NewTaggingInvocation("invoke", invoker), loc, nil)
	require.False(t, chCtx.HasErrors())
	assert.Equal(t, 500, chCtx.Get(commands.ParamTaggingEnvelope).(*model.Envelope).StatusCode)
	require.Len(t, invoker.Requests, 1)
	assert.Equal(t, "bird-thumb.jpg", *invoker.Requests[0].ThumbnailName)

	invoker.Err = errors.New("denied")
	chCtx = run(commands.NewTaggingInvocation("invoke", invoker), loc, nil)
	assert.Equal(t, model.ErrKindInvocation, failureKind(t, chCtx))
}
