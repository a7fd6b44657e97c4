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

package detection

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdontdon/fit5225/internal/core/model"
)

type stubModel struct {
	names       map[int]string
	predictions []Prediction
	err         error
	calls       int
}

func (m *stubModel) Names() map[int]string { return m.names }

func (m *stubModel) Predict(_ context.Context, _ image.Image) ([]Prediction, error) {
	m.calls++
	return m.predictions, m.err
}

type stubFrames struct {
	reported int
	actual   int
	read     int
	closed   bool
	openErr  error
}

func (s *stubFrames) Open(_ context.Context, _ string) (FrameSource, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s, nil
}

func (s *stubFrames) FrameCount() int { return s.reported }

func (s *stubFrames) Next() (image.Image, error) {
	if s.read >= s.actual {
		return nil, io.EOF
	}
	s.read++
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

func (s *stubFrames) Close() error {
	s.closed = true
	return nil
}

func loaderFor(m Model) Loader {
	return LoaderFunc(func(_ context.Context, _ string) (Model, error) { return m, nil })
}

func writeTestImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, imaging.Save(imaging.New(16, 16, color.White), path))
	return path
}

func TestDetectImageFiltersAndCounts(t *testing.T) {
	m := &stubModel{
		names: map[int]string{0: "Robin", 1: "Jay"},
		predictions: []Prediction{
			{ClassID: 0, Confidence: 0.9},
			{ClassID: 0, Confidence: 0.8},
			{ClassID: 1, Confidence: 0.51},
			{ClassID: 1, Confidence: 0.5},
			{ClassID: 7, Confidence: 0.99},
		},
	}
	d := NewDetector(loaderFor(m), nil, Options{ModelPath: "model.pt"})

	result := d.DetectImage(context.Background(), writeTestImage(t, "bird.png"), DefaultConfidenceThreshold)

	assert.Nil(t, result.Failure)
	assert.Equal(t, []string{"Jay", "Robin", UnknownLabel}, result.Labels)
	assert.Equal(t, map[string]int{"Robin": 2, "Jay": 1, UnknownLabel: 1}, result.Counts)
}

func TestDetectImageIsDeterministic(t *testing.T) {
	m := &stubModel{names: map[int]string{0: "robin"}, predictions: []Prediction{{ClassID: 0, Confidence: 0.7}}}
	d := NewDetector(loaderFor(m), nil, Options{})
	path := writeTestImage(t, "bird.jpg")

	first := d.DetectImage(context.Background(), path, 0.5)
	second := d.DetectImage(context.Background(), path, 0.5)
	assert.Equal(t, first, second)
}

func TestDetectImageDecodeFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o600))
	m := &stubModel{names: map[int]string{0: "robin"}}
	d := NewDetector(loaderFor(m), nil, Options{})

	result := d.DetectImage(context.Background(), path, 0.5)

	assert.Empty(t, result.Labels)
	assert.Empty(t, result.Counts)
	require.NotNil(t, result.Failure)
	assert.Equal(t, model.ErrKindDecode, result.Failure.Kind)
	assert.Zero(t, m.calls)
}

func TestDetectImageLoadFailure(t *testing.T) {
	loader := LoaderFunc(func(_ context.Context, _ string) (Model, error) { return nil, errors.New("missing weights") })
	d := NewDetector(loader, nil, Options{})

	result := d.DetectImage(context.Background(), writeTestImage(t, "bird.png"), 0.5)

	require.NotNil(t, result.Failure)
	assert.Equal(t, model.ErrKindModel, result.Failure.Kind)
	assert.Empty(t, result.Counts)
}

func TestEffectiveStride(t *testing.T) {
	assert.Equal(t, 30, EffectiveStride(600, 30, 10))
	assert.Equal(t, 30, EffectiveStride(300, 30, 10))
	assert.Equal(t, 29, EffectiveStride(299, 30, 10))
	assert.Equal(t, 10, EffectiveStride(100, 30, 10))
	assert.Equal(t, 2, EffectiveStride(20, 30, 10))
	assert.Equal(t, 1, EffectiveStride(5, 30, 10))
	assert.Equal(t, 30, EffectiveStride(0, 30, 10))
}

func TestDetectVideoSampling(t *testing.T) {
	cases := []struct {
		name        string
		reported    int
		actual      int
		wantSamples int
		wantRead    int
	}{
		{name: "long video", reported: 600, actual: 600, wantSamples: 10, wantRead: 300},
		{name: "short video", reported: 20, actual: 20, wantSamples: 10, wantRead: 20},
		{name: "tiny video", reported: 5, actual: 5, wantSamples: 5, wantRead: 5},
		{name: "unknown length", reported: 0, actual: 100, wantSamples: 3, wantRead: 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &stubModel{names: map[int]string{0: "Robin"}, predictions: []Prediction{{ClassID: 0, Confidence: 0.9}}}
			frames := &stubFrames{reported: tc.reported, actual: tc.actual}
			d := NewDetector(loaderFor(m), frames, Options{})

			result := d.DetectVideo(context.Background(), "nest.mp4", 0.5)

			assert.Nil(t, result.Failure)
			assert.Equal(t, tc.wantSamples, m.calls)
			assert.Equal(t, tc.wantRead, frames.read)
			assert.Equal(t, map[string]int{"Robin": tc.wantSamples}, result.Counts)
			assert.Equal(t, []string{"Robin"}, result.Labels)
			assert.True(t, frames.closed)
		})
	}
}

func TestDetectVideoReleasesCaptureOnModelFailure(t *testing.T) {
	m := &stubModel{names: map[int]string{0: "Robin"}, err: errors.New("cuda out of memory")}
	frames := &stubFrames{reported: 600, actual: 600}
	d := NewDetector(loaderFor(m), frames, Options{})

	result := d.DetectVideo(context.Background(), "nest.mp4", 0.5)

	require.NotNil(t, result.Failure)
	assert.Equal(t, model.ErrKindModel, result.Failure.Kind)
	assert.Empty(t, result.Counts)
	assert.True(t, frames.closed)
}

func TestDetectVideoOpenFailure(t *testing.T) {
	m := &stubModel{names: map[int]string{0: "Robin"}}
	d := NewDetector(loaderFor(m), &stubFrames{openErr: errors.New("moov atom not found")}, Options{})

	result := d.DetectVideo(context.Background(), "nest.mp4", 0.5)

	require.NotNil(t, result.Failure)
	assert.Equal(t, model.ErrKindDecode, result.Failure.Kind)
	assert.Empty(t, result.Labels)
}

func TestDetectAudioIsEmpty(t *testing.T) {
	d := NewDetector(loaderFor(&stubModel{}), nil, Options{})
	result := d.Detect(context.Background(), model.MediaTypeAudio, "call.wav", 0.5)
	assert.Nil(t, result.Failure)
	assert.Empty(t, result.Labels)
	assert.Empty(t, result.Counts)
}

func TestProbeFrameCount(t *testing.T) {
	assert.Equal(t, 240, probeStream{NbFrames: "240"}.frameCount())
	assert.Equal(t, 300, probeStream{NbFrames: "N/A", Duration: "10.0", RFrameRate: "30/1"}.frameCount())
	assert.Equal(t, 0, probeStream{}.frameCount())
	assert.InDelta(t, 29.97, parseFrameRate("30000/1001"), 0.01)
}
