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

// Package detection adapts object detection models to the tagging pipeline.
// A Model predicts class ids and confidences for a single frame; the Detector
// loads a model per invocation, filters predictions by confidence, resolves
// class names and aggregates them into label counts for images and sampled
// video frames.
package detection

import (
	"context"
	"image"
)

const (
	DefaultConfidenceThreshold = 0.5
	DefaultFramesToSample      = 10
	DefaultFrameSkipRate       = 30

	// UnknownLabel is reported for class ids the model has no name for.
	UnknownLabel = "Unknown"
)

// Prediction is a single detection in one frame.
type Prediction struct {
	ClassID    int             `json:"class_id"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"-"`
}

// Model is a loaded detection model.
type Model interface {
	// Names maps class ids to label names.
	Names() map[int]string

	// Predict runs the model once over img.
	Predict(ctx context.Context, img image.Image) ([]Prediction, error)
}

// Loader loads a model artifact by path.
type Loader interface {
	Load(ctx context.Context, modelPath string) (Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, modelPath string) (Model, error)

func (f LoaderFunc) Load(ctx context.Context, modelPath string) (Model, error) {
	return f(ctx, modelPath)
}

// FrameSource yields decoded video frames in order.
type FrameSource interface {
	// FrameCount is the total number of frames reported by the container, or
	// 0 when unknown.
	FrameCount() int

	// Next returns the next frame, or io.EOF after the last one. The returned
	// image is only valid until the following call.
	Next() (image.Image, error)

	Close() error
}

// FrameOpener opens a FrameSource for a local video file.
type FrameOpener interface {
	Open(ctx context.Context, path string) (FrameSource, error)
}
