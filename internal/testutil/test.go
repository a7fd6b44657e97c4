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

// Package test provides the configuration, sample triggers and in-memory
// service fakes shared by the package tests.
package test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/tdontdon/fit5225/internal/cloud"
)

// StateManager caches the test configuration across tests of one package.
type StateManager struct {
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test when err is set.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// GetTestS3EventText is an S3 put notification for bird.jpg in bucket b.
func GetTestS3EventText() string {
	return `{
  "Records": [
    {
      "eventVersion": "2.1",
      "eventSource": "aws:s3",
      "awsRegion": "us-east-1",
      "eventTime": "2024-10-11T03:04:08.672Z",
      "eventName": "ObjectCreated:Put",
      "s3": {
        "s3SchemaVersion": "1.0",
        "bucket": {"name": "b", "arn": "arn:aws:s3:::b"},
        "object": {"key": "bird.jpg", "size": 1024, "eTag": "67c1rAU1RYZzK5zp8iBkA"}
      }
    }
  ]
}`
}

// GetTestGCSMessageText is a Cloud Storage notification for a finalized
// video, as delivered over Pub/Sub.
func GetTestGCSMessageText() string {
	return `{
  "kind": "storage#object",
  "id": "media_uploads/clips/robin-001.mp4/1728615848664286",
  "name": "clips/robin-001.mp4",
  "bucket": "media_uploads",
  "generation": "1728615848664286",
  "contentType": "video/mp4",
  "timeCreated": "2024-10-11T03:04:08.672Z",
  "size": "259348037"
}`
}

// findConfigDir walks up from the working directory to the module root.
func findConfigDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "configs"), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("module root not found")
		}
		dir = parent
	}
}

// SetupOS points the configuration loader at configs/.env.test.toml.
func SetupOS() error {
	configDir, err := findConfigDir()
	if err != nil {
		return err
	}
	if err = os.Setenv(cloud.EnvConfigFilePrefix, configDir); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig loads the test configuration once per package.
func GetConfig() *cloud.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			slog.Error("failed to setup environment for test", "error", err)
			os.Exit(1)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			slog.Error("failed to load test configuration", "error", err)
			os.Exit(1)
		}
		state.config = config
	}
	return state.config
}
