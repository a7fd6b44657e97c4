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

// Command tagger is the Lambda function that detects labels in one upload
// and stores its Tag Record.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"

	"github.com/tdontdon/fit5225/internal/cloud"
	"github.com/tdontdon/fit5225/internal/core/model"
	"github.com/tdontdon/fit5225/internal/core/workflow"
	"github.com/tdontdon/fit5225/internal/telemetry"
)

func main() {
	_ = godotenv.Load()
	telemetry.SetupLogging()
	ctx := context.Background()

	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	shutdown, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("failed to setup OpenTelemetry", "error", err)
		os.Exit(1)
	}
	clients, err := cloud.NewServiceClients(ctx, config)
	if err != nil {
		slog.Error("failed to create service clients", "error", err)
		os.Exit(1)
	}
	tagging := workflow.NewTaggingWorkflow(config, clients)

	handler := func(ctx context.Context, request *model.TaggingRequest) (*model.Envelope, error) {
		defer telemetry.ForceFlush(ctx)
		return tagging.Handle(ctx, request), nil
	}
	lambda.StartWithOptions(handler, lambda.WithEnableSIGTERM(func() {
		_ = shutdown(context.Background())
		clients.Close()
	}))
}
