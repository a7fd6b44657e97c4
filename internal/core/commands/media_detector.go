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
	"github.com/tdontdon/fit5225/internal/core/detection"
	"github.com/tdontdon/fit5225/internal/core/model"
)

// MediaDetector runs object detection over the downloaded file. Detection
// failures do not stop the chain: they produce an empty result, which is
// tagged as such.
type MediaDetector struct {
	cor.BaseCommand
	detector  *detection.Detector
	threshold float64
}

// NewMediaDetector keeps predictions scoring strictly above threshold. Zero
// keeps every prediction with a positive score.
func NewMediaDetector(name string, detector *detection.Detector, threshold float64) *MediaDetector {
	return &MediaDetector{BaseCommand: *cor.NewBaseCommand(name), detector: detector, threshold: threshold}
}

func (c *MediaDetector) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(ParamTaggingRequest) != nil
}

func (c *MediaDetector) Execute(context cor.Context) {
	path := context.Get(c.GetInputParam()).(string)
	request := context.Get(ParamTaggingRequest).(*model.TaggingRequest)

	result := c.detector.Detect(context.GetContext(), model.MediaType(request.Type), path, c.threshold)
	if result.Failure != nil {
		slog.WarnContext(context.GetContext(), "detection produced no result", "url", request.URL, "kind", result.Failure.Kind, "error", result.Failure)
		if c.ErrorCounter != nil {
			c.ErrorCounter.Add(context.GetContext(), 1)
		}
	} else {
		c.Succeed(context)
	}
	context.Add(ParamDetectionResult, &result)
	context.Add(c.GetOutputParam(), &result)
}
