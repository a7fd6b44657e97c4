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

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/tdontdon/fit5225/internal/cloud"
	"github.com/tdontdon/fit5225/internal/core/workflow"
)

type StateManager struct {
	config  *cloud.Config
	cloud   *cloud.ServiceClients
	intake  *workflow.IntakeWorkflow
	tagging *workflow.TaggingWorkflow
}

var state = &StateManager{}

// SetupOS loads a local .env file and defaults the configuration location
// to ./configs with the "local" runtime.
func SetupOS() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		return os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return nil
}

func GetConfig() *cloud.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			slog.Error("failed to setup environment", "error", err)
			os.Exit(1)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			slog.Error("failed to load configuration", "error", err)
			os.Exit(1)
		}
		state.config = config
	}
	return state.config
}

func InitState(ctx context.Context) error {
	config := GetConfig()

	cloudClients, err := cloud.NewServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	state.tagging = workflow.NewTaggingWorkflow(config, cloudClients)
	if config.Tagging.Invocation == cloud.InvocationLocal {
		cloudClients.UseLocalTagging(state.tagging)
	}
	state.intake = workflow.NewIntakeWorkflow(config, cloudClients)

	SetupListeners(ctx, cloudClients, state.intake)
	return nil
}
