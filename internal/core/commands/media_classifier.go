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
	"log/slog"

	"github.com/tdontdon/fit5225/internal/core/cor"
	"github.com/tdontdon/fit5225/internal/core/model"
)

// MediaClassifier classifies the upload by extension and derives its record
// URL and thumbnail location. Events carrying a region are addressed with
// the regional S3 form; the rest use the object store's own URLs.
type MediaClassifier struct {
	cor.BaseCommand
	fallbackURL model.URLFunc
}

func NewMediaClassifier(name string, fallbackURL model.URLFunc) *MediaClassifier {
	return &MediaClassifier{BaseCommand: *cor.NewBaseCommand(name), fallbackURL: fallbackURL}
}

func (c *MediaClassifier) Execute(context cor.Context) {
	event := context.Get(c.GetInputParam()).(*model.UploadEvent)

	publicURL := c.fallbackURL
	if event.Region != "" {
		publicURL = model.RegionalURL(event.Region)
	}

	loc, err := model.Locate(event.Bucket, event.Key, publicURL)
	if err != nil {
		slog.WarnContext(context.GetContext(), "rejecting upload", "key", event.Key, "error", err)
		c.Fail(context, err)
		return
	}
	c.Succeed(context)
	context.Add(ParamObjectLocation, loc)
	context.Add(c.GetOutputParam(), loc)
}
