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

// Package commands contains the steps the intake and tagging pipelines are
// built from. Each command reads its input from the chain context, records a
// typed model.PipelineError on failure and hands its output to the next
// command through cor.CtxOut.
package commands

// Context keys shared between commands and the workflows that read their
// results.
const (
	ParamUploadEvent     = "__UPLOAD_EVENT__"
	ParamObjectLocation  = "__OBJECT_LOCATION__"
	ParamCachedRecord    = "__CACHED_RECORD__"
	ParamTaggingEnvelope = "__TAGGING_ENVELOPE__"
	ParamTaggingRequest  = "__TAGGING_REQUEST__"
	ParamLocalMediaFile  = "__LOCAL_MEDIA_FILE__"
	ParamDetectionResult = "__DETECTION_RESULT__"
	ParamTagRecord       = "__TAG_RECORD__"
	ParamWriteAck        = "__WRITE_ACK__"
	ParamNotificationID  = "__NOTIFICATION_ID__"
)
