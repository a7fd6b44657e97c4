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

package workflow

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tdontdon/fit5225/internal/cloud"
	"github.com/tdontdon/fit5225/internal/core/commands"
	"github.com/tdontdon/fit5225/internal/core/cor"
	"github.com/tdontdon/fit5225/internal/core/detection"
	"github.com/tdontdon/fit5225/internal/core/model"
	"github.com/tdontdon/fit5225/internal/core/services"
)

var (
	errNoTaggingResponse = errors.New("tagging stage returned no response")
	errNoWriteAck        = errors.New("record store returned no acknowledgement")
	errNoRequest         = errors.New("tagging request is empty")
)

// TaggingWorkflow downloads the object named by a TaggingRequest, detects
// labels in it, stores the Tag Record and publishes a notification when a
// topic is configured.
type TaggingWorkflow struct {
	cor.BaseCommand
	objectStore services.ObjectStore
	recordStore services.RecordStore
	notifier    services.Notifier
	detector    *detection.Detector
	httpClient  *http.Client
	config      *cloud.Config
	chain       cor.Chain
}

func (w *TaggingWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

func (w *TaggingWorkflow) IsExecutable(context cor.Context) bool {
	return w.chain.IsExecutable(context) && context.Get(cor.CtxIn) != nil
}

func (w *TaggingWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewTaggingRequestValidator("tagging-request-validator"))
	out.AddCommand(commands.NewPresignedDownload("presigned-download", w.objectStore, w.httpClient, w.config.PresignTTL()))
	out.AddCommand(commands.NewMediaDetector("media-detector", w.detector, w.config.Detection.ConfidenceThreshold))
	out.AddCommand(commands.NewTagRecordBuilder("tag-record-builder"))
	out.AddCommand(commands.NewTagRecordPersister("tag-record-persister", w.recordStore))
	out.AddCommand(commands.NewTagNotifier("tag-notifier", w.notifier, w.config.Notification.Subject))
	w.chain = out
}

// Handle runs the stage for one request. A successful run answers 200 with
// the store's write acknowledgement; any failure answers with the status of
// its kind and a {"error","kind"} body.
func (w *TaggingWorkflow) Handle(ctx context.Context, request *model.TaggingRequest) *model.Envelope {
	if request == nil {
		return model.NewFailureEnvelope(model.NewPipelineError(model.ErrKindInvalidRequest, w.GetName(), errNoRequest))
	}
	runID := uuid.NewString()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("run_id", runID))

	chCtx := cor.NewBaseContext()
	defer chCtx.Close()
	chCtx.SetContext(ctx)
	chCtx.Add(cor.CtxIn, request)

	w.Execute(chCtx)

	if chCtx.HasErrors() {
		failure := model.AsPipelineError(chCtx.FirstError(), model.ErrKindPersistence, w.GetName())
		slog.ErrorContext(ctx, "tagging failed", "run_id", runID, "url", request.URL, "kind", failure.Kind, "error", failure)
		return model.NewFailureEnvelope(failure)
	}

	ack, ok := chCtx.Get(commands.ParamWriteAck).(*model.WriteAck)
	if !ok {
		return model.NewFailureEnvelope(model.NewPipelineError(model.ErrKindPersistence, w.GetName(), errNoWriteAck))
	}
	envelope, err := model.NewJSONEnvelope(http.StatusOK, ack)
	if err != nil {
		return model.NewFailureEnvelope(model.NewPipelineError(model.ErrKindPersistence, w.GetName(), err))
	}
	slog.InfoContext(ctx, "tagging complete", "run_id", runID, "url", request.URL)
	return envelope
}

func NewTaggingWorkflow(config *cloud.Config, serviceClients *cloud.ServiceClients) *TaggingWorkflow {
	out := &TaggingWorkflow{
		BaseCommand: *cor.NewBaseCommand("tagging-workflow"),
		objectStore: serviceClients.ObjectStore,
		recordStore: serviceClients.RecordStore,
		notifier:    serviceClients.Notifier,
		detector:    serviceClients.Detector,
		httpClient:  serviceClients.HTTPClient,
		config:      config,
	}
	out.initializeChain()
	return out
}
