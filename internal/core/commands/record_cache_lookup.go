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

// RecordCacheLookup looks the upload up in the record store. A hit stores
// the normalized record under ParamCachedRecord and halts the chain.
type RecordCacheLookup struct {
	cor.BaseCommand
	store services.RecordStore
}

func NewRecordCacheLookup(name string, store services.RecordStore) *RecordCacheLookup {
	return &RecordCacheLookup{BaseCommand: *cor.NewBaseCommand(name), store: store}
}

func (c *RecordCacheLookup) Execute(context cor.Context) {
	loc := context.Get(c.GetInputParam()).(*model.ObjectLocation)

	record, found, err := c.store.GetRecord(context.GetContext(), loc.URL, loc.Type)
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindPersistence, c.GetName(), err))
		return
	}
	c.Succeed(context)

	if found {
		slog.InfoContext(context.GetContext(), "record already tagged", "url", loc.URL, "type", loc.Type)
		context.Add(ParamCachedRecord, model.NormalizeNumbers(record))
		context.Halt()
		return
	}
	context.Add(c.GetOutputParam(), loc)
}
