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
	"bytes"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"

	"github.com/tdontdon/fit5225/internal/core/cor"
	"github.com/tdontdon/fit5225/internal/core/model"
	"github.com/tdontdon/fit5225/internal/core/services"
)

const (
	DefaultThumbnailScale = 0.5
	ThumbnailContentType  = "image/jpeg"
	thumbnailJPEGQuality  = 95
)

// ThumbnailCreator downscales an uploaded image by a fixed factor on both
// axes and stores it as JPEG at the location's thumbnail key. Videos pass
// through untouched.
type ThumbnailCreator struct {
	cor.BaseCommand
	store services.ObjectStore
	scale float64
}

func NewThumbnailCreator(name string, store services.ObjectStore, scale float64) *ThumbnailCreator {
	if scale <= 0 {
		scale = DefaultThumbnailScale
	}
	return &ThumbnailCreator{BaseCommand: *cor.NewBaseCommand(name), store: store, scale: scale}
}

func (c *ThumbnailCreator) Execute(context cor.Context) {
	loc := context.Get(c.GetInputParam()).(*model.ObjectLocation)
	ctx := context.GetContext()

	if loc.Type != model.MediaTypeImage || loc.ThumbnailKey == nil {
		context.Add(c.GetOutputParam(), loc)
		return
	}

	data, err := c.store.GetObject(ctx, loc.Bucket, loc.Key)
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindTransfer, c.GetName(), err))
		return
	}

	thumbnail, err := CreateThumbnail(data, c.scale)
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindDecode, c.GetName(), err))
		return
	}

	if err := c.store.PutObject(ctx, loc.Bucket, *loc.ThumbnailKey, thumbnail, ThumbnailContentType); err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindTransfer, c.GetName(), err))
		return
	}

	slog.InfoContext(ctx, "thumbnail stored", "bucket", loc.Bucket, "key", *loc.ThumbnailKey, "bytes", len(thumbnail))
	c.Succeed(context)
	context.Add(c.GetOutputParam(), loc)
}

// CreateThumbnail decodes data, scales both dimensions by scale with linear
// interpolation and encodes the result as JPEG.
func CreateThumbnail(data []byte, scale float64) ([]byte, error) {
	if !filetype.IsImage(data) {
		return nil, errors.New("unable to decode image: unrecognized format")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("unable to decode image: %w", err)
	}

	width, height := scaledSize(img.Bounds(), scale)
	thumb := imaging.Resize(img, width, height, imaging.Linear)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailJPEGQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// scaledSize rounds halves to even, as OpenCV does.
func scaledSize(bounds image.Rectangle, scale float64) (int, int) {
	width := int(math.RoundToEven(float64(bounds.Dx()) * scale))
	height := int(math.RoundToEven(float64(bounds.Dy()) * scale))
	return max(1, width), max(1, height)
}
