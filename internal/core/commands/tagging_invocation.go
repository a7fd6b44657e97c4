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
	"github.com/tdontdon/fit5225/internal/core/services"
)

// TaggingInvocation hands the upload to the tagging stage and waits for its
// envelope, which is stored under ParamTaggingEnvelope whatever its status.
type TaggingInvocation struct {
	cor.BaseCommand
	invoker services.TaggingInvoker
}

func NewTaggingInvocation(name string, invoker services.TaggingInvoker) *TaggingInvocation {
	return &TaggingInvocation{BaseCommand: *cor.NewBaseCommand(name), invoker: invoker}
}

func (c *TaggingInvocation) Execute(context cor.Context) {
	loc := context.Get(c.GetInputParam()).(*model.ObjectLocation)
	request := model.NewTaggingRequest(loc)

	envelope, err := c.invoker.Invoke(context.GetContext(), request)
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindInvocation, c.GetName(), err))
		return
	}

	slog.InfoContext(context.GetContext(), "tagging stage returned", "url", request.URL, "status", envelope.StatusCode)
	c.Succeed(context)
	context.Add(ParamTaggingEnvelope, envelope)
	context.Add(c.GetOutputParam(), envelope)
}
