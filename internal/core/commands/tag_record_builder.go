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
	"github.com/tdontdon/fit5225/internal/core/cor"
	"github.com/tdontdon/fit5225/internal/core/detection"
	"github.com/tdontdon/fit5225/internal/core/model"
)

// TagRecordBuilder assembles the Tag Record, lowercasing label names.
type TagRecordBuilder struct {
	cor.BaseCommand
}

func NewTagRecordBuilder(name string) *TagRecordBuilder {
	return &TagRecordBuilder{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *TagRecordBuilder) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(ParamTaggingRequest) != nil
}

func (c *TagRecordBuilder) Execute(context cor.Context) {
	result := context.Get(c.GetInputParam()).(*detection.Result)
	request := context.Get(ParamTaggingRequest).(*model.TaggingRequest)

	record := &model.TagRecord{
		URL:           request.URL,
		Type:          model.MediaType(request.Type),
		Filename:      request.Filename,
		Tags:          model.LowercaseCounts(result.Counts),
		ThumbnailName: request.ThumbnailName,
		ThumbnailURL:  request.ThumbnailURL,
	}
	c.Succeed(context)
	context.Add(ParamTagRecord, record)
	context.Add(c.GetOutputParam(), record)
}
