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
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/tdontdon/fit5225/internal/core/model"
)

// Result is the outcome of a detection run. Labels is the sorted set of
// distinct label names and Counts holds the occurrences of each. Failures
// never surface as errors: they leave Labels and Counts empty and are
// reported on Failure for logging.
type Result struct {
	Labels  []string
	Counts  map[string]int
	Failure *model.PipelineError
}

func emptyResult(failure *model.PipelineError) Result {
	return Result{Labels: []string{}, Counts: map[string]int{}, Failure: failure}
}

// Options configure a Detector.
type Options struct {
	ModelPath      string
	FramesToSample int
	FrameSkipRate  int
}

// Detector runs a model over images and sampled video frames.
type Detector struct {
	loader  Loader
	frames  FrameOpener
	options Options
}

// NewDetector builds a Detector. Zero sampling options take their defaults.
func NewDetector(loader Loader, frames FrameOpener, options Options) *Detector {
	if options.FramesToSample <= 0 {
		options.FramesToSample = DefaultFramesToSample
	}
	if options.FrameSkipRate <= 0 {
		options.FrameSkipRate = DefaultFrameSkipRate
	}
	return &Detector{loader: loader, frames: frames, options: options}
}

// Detect dispatches to the routine for mediaType.
func (d *Detector) Detect(ctx context.Context, mediaType model.MediaType, path string, threshold float64) Result {
	switch mediaType {
	case model.MediaTypeImage:
		return d.DetectImage(ctx, path, threshold)
	case model.MediaTypeVideo:
		return d.DetectVideo(ctx, path, threshold)
	case model.MediaTypeAudio:
		return d.DetectAudio(ctx, path)
	}
	return emptyResult(model.NewPipelineError(model.ErrKindUnsupportedMedia, "detect",
		fmt.Errorf("no detector for media type %q", mediaType)))
}

// DetectImage decodes the image at path and runs the model over it once.
func (d *Detector) DetectImage(ctx context.Context, path string, threshold float64) Result {
	m, err := d.loader.Load(ctx, d.options.ModelPath)
	if err != nil {
		return d.fail(ctx, model.ErrKindModel, "load_model", path, err)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return d.fail(ctx, model.ErrKindDecode, "decode_image", path, err)
	}

	predictions, err := m.Predict(ctx, img)
	if err != nil {
		return d.fail(ctx, model.ErrKindModel, "predict", path, err)
	}

	counts := make(map[string]int)
	for _, label := range confidentLabels(m.Names(), predictions, threshold) {
		counts[label]++
	}
	result := Result{Labels: sortedLabels(counts), Counts: counts}
	slog.InfoContext(ctx, "image detection complete", "path", path, "labels", result.Labels, "counts", result.Counts)
	return result
}

// EffectiveStride returns the stride used to sample a video of totalFrames
// frames. Videos too short for samples frames at the configured stride are
// sampled every totalFrames/samples frames, at least every frame.
func EffectiveStride(totalFrames, stride, samples int) int {
	if totalFrames > 0 && totalFrames < stride*samples {
		return max(1, totalFrames/samples)
	}
	return stride
}

// DetectVideo samples frames from the video at path and aggregates every
// confident detection across the sampled frames. Scanning stops once enough
// samples were taken, the video ends, or more than stride*(samples+5) frames
// were read.
func (d *Detector) DetectVideo(ctx context.Context, path string, threshold float64) Result {
	m, err := d.loader.Load(ctx, d.options.ModelPath)
	if err != nil {
		return d.fail(ctx, model.ErrKindModel, "load_model", path, err)
	}

	source, err := d.frames.Open(ctx, path)
	if err != nil {
		return d.fail(ctx, model.ErrKindDecode, "open_video", path, err)
	}
	defer func() {
		if err := source.Close(); err != nil {
			slog.WarnContext(ctx, "failed to release video capture", "path", path, "error", err)
		}
	}()

	samples := d.options.FramesToSample
	stride := EffectiveStride(source.FrameCount(), d.options.FrameSkipRate, samples)
	if stride != d.options.FrameSkipRate {
		slog.InfoContext(ctx, "adjusted frame skip rate", "path", path, "frames", source.FrameCount(), "stride", stride)
	}

	names := m.Names()
	counts := make(map[string]int)
	frameNum, sampled := 0, 0
	for sampled < samples {
		frame, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return d.fail(ctx, model.ErrKindDecode, "read_frame", path, err)
		}
		frameNum++

		if frameNum%stride == 0 || stride == 1 {
			sampled++
			predictions, err := m.Predict(ctx, frame)
			if err != nil {
				return d.fail(ctx, model.ErrKindModel, "predict", path, err)
			}
			for _, label := range confidentLabels(names, predictions, threshold) {
				counts[label]++
			}
		}

		if stride > 1 && frameNum > stride*(samples+5) {
			slog.InfoContext(ctx, "reached max frames to scan", "path", path, "frames", frameNum)
			break
		}
	}

	result := Result{Labels: sortedLabels(counts), Counts: counts}
	slog.InfoContext(ctx, "video detection complete",
		"path", path, "frames_read", frameNum, "samples", sampled, "labels", result.Labels, "counts", result.Counts)
	return result
}

// DetectAudio has no model to run and always returns an empty result.
func (d *Detector) DetectAudio(ctx context.Context, path string) Result {
	slog.WarnContext(ctx, "audio tagging is not supported by the visual model", "path", path, "model", d.options.ModelPath)
	return emptyResult(nil)
}

func (d *Detector) fail(ctx context.Context, kind model.ErrorKind, op string, path string, err error) Result {
	failure := model.NewPipelineError(kind, op, err)
	slog.ErrorContext(ctx, "detection failed", "path", path, "error", failure)
	return emptyResult(failure)
}

func confidentLabels(names map[int]string, predictions []Prediction, threshold float64) []string {
	labels := make([]string, 0, len(predictions))
	for _, p := range predictions {
		if p.Confidence > threshold {
			labels = append(labels, labelFor(names, p.ClassID))
		}
	}
	return labels
}

func labelFor(names map[int]string, classID int) string {
	if name, ok := names[classID]; ok {
		return name
	}
	return UnknownLabel
}

func sortedLabels(counts map[string]int) []string {
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
