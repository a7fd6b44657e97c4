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

// TagRecordPersister writes the record and keeps the store's acknowledgement
// under ParamWriteAck.
type TagRecordPersister struct {
	cor.BaseCommand
	store services.RecordStore
}

func NewTagRecordPersister(name string, store services.RecordStore) *TagRecordPersister {
	return &TagRecordPersister{BaseCommand: *cor.NewBaseCommand(name), store: store}
}

func (c *TagRecordPersister) Execute(context cor.Context) {
	record := context.Get(c.GetInputParam()).(*model.TagRecord)

	ack, err := c.store.PutRecord(context.GetContext(), record)
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindPersistence, c.GetName(), err))
		return
	}
	slog.InfoContext(context.GetContext(), "tag record stored", "url", record.URL, "type", record.Type, "tags", record.Tags, "store", ack.Store)
	c.Succeed(context)
	context.Add(ParamWriteAck, ack)
	context.Add(c.GetOutputParam(), record)
}
