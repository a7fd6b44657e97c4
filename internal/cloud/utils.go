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

package cloud

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ilyakaznacheev/cleanenv"
)

const (
	ConfigFileBaseName  = ".env"
	ConfigFileExtension = ".toml"
	ConfigSeparator     = "."
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX"
	EnvConfigRuntime    = "GCP_RUNTIME"
	DefaultRuntime      = "test"
)

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig populates baseConfig from, in order:
//
//  1. {GCP_CONFIG_PREFIX}/.env.toml
//  2. {GCP_CONFIG_PREFIX}/.env.{GCP_RUNTIME}.toml (runtime defaults to "test")
//  3. environment variables named by the `env` struct tags
//
// Missing files are skipped; later sources override earlier ones.
func LoadConfig(baseConfig interface{}) error {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = DefaultRuntime
	}

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension

	for _, fileName := range []string{baseConfigFileName, envConfigFileName} {
		if !fileExists(fileName) {
			slog.Debug("configuration file not found", "file", fileName)
			continue
		}
		if _, err := toml.DecodeFile(fileName, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", fileName, err)
		}
		slog.Debug("loaded configuration file", "file", fileName)
	}

	// Unset variables leave the file values alone.
	if err := cleanenv.ReadEnv(baseConfig); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// PresignTTL returns the configured signed link lifetime.
func (c *Config) PresignTTL() time.Duration {
	return time.Duration(c.Storage.PresignTTLSeconds) * time.Second
}

// Validate rejects selector values the application cannot wire.
func (c *Config) Validate() error {
	var errs []error
	check := func(field string, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s must be one of %v, got %q", field, allowed, value))
	}
	check("application.provider", c.Application.Provider, ProviderAWS, ProviderGCP)
	check("application.telemetry", c.Application.Telemetry, TelemetryGCP, TelemetryNone, "")
	check("tag_store.kind", c.TagStore.Kind, TagStoreDynamoDB, TagStoreBigQuery)
	check("notification.kind", c.Notification.Kind, NotificationSNS, NotificationPubSub)
	check("tagging.invocation", c.Tagging.Invocation, InvocationLambda, InvocationLocal)
	check("detection.backend", c.Detection.Backend, DetectionBackendServer, DetectionBackendGemini)
	if c.TagStore.Table == "" {
		errs = append(errs, errors.New("tag_store.table is required"))
	}
	if c.TagStore.Kind == TagStoreBigQuery && c.TagStore.Dataset == "" {
		errs = append(errs, errors.New("tag_store.dataset is required for bigquery"))
	}
	if c.Detection.Backend == DetectionBackendGemini {
		if _, ok := c.AgentModels[c.Detection.AgentModel]; !ok {
			errs = append(errs, fmt.Errorf("detection.agent_model %q is not configured", c.Detection.AgentModel))
		}
	}
	return errors.Join(errs...)
}
