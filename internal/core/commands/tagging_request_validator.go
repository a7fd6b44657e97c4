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
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/tdontdon/fit5225/internal/core/cor"
	"github.com/tdontdon/fit5225/internal/core/model"
)

// TaggingRequestValidator checks the request before anything is downloaded.
type TaggingRequestValidator struct {
	cor.BaseCommand
	validate *validator.Validate
}

func NewTaggingRequestValidator(name string) *TaggingRequestValidator {
	return &TaggingRequestValidator{
		BaseCommand: *cor.NewBaseCommand(name),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (c *TaggingRequestValidator) Execute(context cor.Context) {
	request := context.Get(c.GetInputParam()).(*model.TaggingRequest)

	if err := c.validate.Struct(request); err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindInvalidRequest, c.GetName(),
			fmt.Errorf("invalid tagging request: %w", err)))
		return
	}
	c.Succeed(context)
	context.Add(ParamTaggingRequest, request)
	context.Add(c.GetOutputParam(), request)
}
