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

// Package workflow assembles the commands into the two pipeline stages.
// IntakeWorkflow runs on every upload: it classifies the object, answers from
// the tag store when the object was already tagged, creates the thumbnail and
// hands the object to the tagging stage. TaggingWorkflow downloads the object,
// runs detection and persists and announces the Tag Record.
package workflow

import (
	"context"
	"log/slog"
	"maps"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tdontdon/fit5225/internal/cloud"
	"github.com/tdontdon/fit5225/internal/core/commands"
	"github.com/tdontdon/fit5225/internal/core/cor"
	"github.com/tdontdon/fit5225/internal/core/model"
	"github.com/tdontdon/fit5225/internal/core/services"
)

// CachedRecordMessage accompanies a record served from the tag store.
const CachedRecordMessage = "Data already exists in the database."

// CORSHeaders are attached to every intake response.
var CORSHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type,Authorization",
	"Access-Control-Allow-Methods": "OPTIONS,POST",
}

type IntakeWorkflow struct {
	cor.BaseCommand
	objectStore    services.ObjectStore
	recordStore    services.RecordStore
	invoker        services.TaggingInvoker
	thumbnailScale float64
	chain          cor.Chain
}

func (w *IntakeWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// IsExecutable only needs the trigger; an unreadable trigger is reported by
// the first command.
func (w *IntakeWorkflow) IsExecutable(context cor.Context) bool {
	return w.chain.IsExecutable(context) && context.Get(cor.CtxIn) != nil
}

func (w *IntakeWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewUploadTriggerReader("upload-trigger-reader"))
	out.AddCommand(commands.NewMediaClassifier("media-classifier", w.objectStore.PublicURL))
	out.AddCommand(commands.NewRecordCacheLookup("record-cache-lookup", w.recordStore))
	out.AddCommand(commands.NewThumbnailCreator("thumbnail-creator", w.objectStore, w.thumbnailScale))
	out.AddCommand(commands.NewTaggingInvocation("tagging-invocation", w.invoker))
	w.chain = out
}

// Handle runs the stage for one trigger and renders the response envelope.
// The trigger is anything commands.ReadUploadTrigger accepts.
func (w *IntakeWorkflow) Handle(ctx context.Context, trigger interface{}) *model.Envelope {
	runID := uuid.NewString()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("run_id", runID))

	chCtx := cor.NewBaseContext()
	defer chCtx.Close()
	chCtx.SetContext(ctx)
	chCtx.Add(cor.CtxIn, trigger)

	w.Execute(chCtx)

	envelope := w.render(ctx, runID, chCtx)
	envelope.Headers = maps.Clone(CORSHeaders)
	return envelope
}

func (w *IntakeWorkflow) render(ctx context.Context, runID string, chCtx cor.Context) *model.Envelope {
	if chCtx.HasErrors() {
		failure := model.AsPipelineError(chCtx.FirstError(), model.ErrKindInvocation, w.GetName())
		slog.ErrorContext(ctx, "intake failed", "run_id", runID, "kind", failure.Kind, "error", failure)
		return model.NewFailureEnvelope(failure)
	}

	if record, ok := chCtx.Get(commands.ParamCachedRecord).(map[string]interface{}); ok {
		slog.InfoContext(ctx, "intake answered from tag store", "run_id", runID, "url", record["url"])
		envelope, err := model.NewJSONEnvelope(http.StatusOK, record)
		if err != nil {
			return model.NewFailureEnvelope(model.NewPipelineError(model.ErrKindPersistence, w.GetName(), err))
		}
		envelope.Message = CachedRecordMessage
		return envelope
	}

	tagging, ok := chCtx.Get(commands.ParamTaggingEnvelope).(*model.Envelope)
	if !ok {
		return model.NewFailureEnvelope(model.NewPipelineError(model.ErrKindInvocation, w.GetName(), errNoTaggingResponse))
	}
	envelope, err := model.NewJSONEnvelope(http.StatusOK, tagging)
	if err != nil {
		return model.NewFailureEnvelope(model.NewPipelineError(model.ErrKindInvocation, w.GetName(), err))
	}
	slog.InfoContext(ctx, "intake complete", "run_id", runID, "tagging_status", tagging.StatusCode)
	return envelope
}

// NewIntakeWorkflow wires the intake stage to the configured object store,
// record store and tagging invoker.
func NewIntakeWorkflow(config *cloud.Config, serviceClients *cloud.ServiceClients) *IntakeWorkflow {
	out := &IntakeWorkflow{
		BaseCommand:    *cor.NewBaseCommand("intake-workflow"),
		objectStore:    serviceClients.ObjectStore,
		recordStore:    serviceClients.RecordStore,
		invoker:        serviceClients.TaggingInvoker,
		thumbnailScale: config.Storage.ThumbnailScale,
	}
	out.initializeChain()
	return out
}
