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

// Package cloud holds the application configuration and the clients for the
// managed services the pipeline depends on. Configuration is read from
// hierarchical TOML files and then overridden from the environment; the
// ServiceClients container is built from it once at start up and shared by
// the workflows.
package cloud

import (
	"google.golang.org/genai"

	"github.com/tdontdon/fit5225/internal/core/detection"
)

// Supported values for the provider and backend selectors.
const (
	ProviderAWS = "aws"
	ProviderGCP = "gcp"

	TagStoreDynamoDB = "dynamodb"
	TagStoreBigQuery = "bigquery"

	NotificationSNS    = "sns"
	NotificationPubSub = "pubsub"

	InvocationLambda = "lambda"
	InvocationLocal  = "local"

	DetectionBackendServer = "server"
	DetectionBackendGemini = "gemini"

	TelemetryGCP  = "gcp"
	TelemetryNone = "none"
)

// DefaultSafetySettings leaves every harm category unblocked; detection
// prompts only carry user uploaded photos of wildlife.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// Application holds settings shared by every component.
type Application struct {
	Name                      string `toml:"name" env:"APP_NAME"`
	Provider                  string `toml:"provider" env:"CLOUD_PROVIDER"`
	Region                    string `toml:"region" env:"AWS_REGION"`
	GoogleProjectId           string `toml:"google_project_id" env:"GOOGLE_CLOUD_PROJECT"`
	GoogleLocation            string `toml:"location" env:"GOOGLE_CLOUD_LOCATION"`
	SignerServiceAccountEmail string `toml:"signer_service_account_email"`
	Telemetry                 string `toml:"telemetry" env:"TELEMETRY"`
}

// Storage configures the object store.
type Storage struct {
	UploadBucket      string  `toml:"upload_bucket" env:"UPLOAD_BUCKET"`
	ThumbnailScale    float64 `toml:"thumbnail_scale"`
	PresignTTLSeconds int     `toml:"presign_ttl_seconds"`
	Endpoint          string  `toml:"endpoint" env:"S3_ENDPOINT"`
}

// TagStore configures where Tag Records live.
type TagStore struct {
	Kind    string `toml:"kind" env:"TAG_STORE"`
	Table   string `toml:"table" env:"TABLE_NAME"`
	Dataset string `toml:"dataset" env:"BIGQUERY_DATASET"`
}

// Notification configures the topic new records are announced on. An empty
// Topic disables notifications.
type Notification struct {
	Kind    string `toml:"kind" env:"NOTIFICATION_KIND"`
	Topic   string `toml:"topic" env:"SNS_TOPIC_ARN"`
	Subject string `toml:"subject"`
}

// Tagging configures how the intake stage reaches the tagging stage.
type Tagging struct {
	FunctionName string `toml:"function_name" env:"TAGGING_FUNCTION_NAME"`
	Invocation   string `toml:"invocation" env:"TAGGING_INVOCATION"`
}

// Detection configures the detection model and video sampling.
type Detection struct {
	Backend             string  `toml:"backend" env:"DETECTION_BACKEND"`
	ModelPath           string  `toml:"model_path" env:"MODEL_PATH"`
	Endpoint            string  `toml:"endpoint" env:"DETECTION_ENDPOINT"`
	AgentModel          string  `toml:"agent_model"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	FramesToSample      int     `toml:"frames_to_sample"`
	FrameSkipRate       int     `toml:"frame_skip_rate"`
	FFmpegCommand       string  `toml:"ffmpeg_command" env:"FFMPEG_COMMAND"`
	FFprobeCommand      string  `toml:"ffprobe_command" env:"FFPROBE_COMMAND"`
}

// VertexAiLLMModel configures a generative model used as a detection backend.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`
	SystemInstructions string  `toml:"system_instructions"`
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"`
	RateLimit          int     `toml:"rate_limit"`
}

// TopicSubscription configures a Pub/Sub subscription delivering upload
// notifications.
type TopicSubscription struct {
	Name             string `toml:"name"`
	DeadLetterTopic  string `toml:"dead_letter_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

// Server configures the HTTP API of the long running server.
type Server struct {
	Port           string   `toml:"port" env:"PORT"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxUploadMB    int64    `toml:"max_upload_mb"`
}

// Config is the root of the configuration files.
type Config struct {
	Application        Application                  `toml:"application"`
	Storage            Storage                      `toml:"storage"`
	TagStore           TagStore                     `toml:"tag_store"`
	Notification       Notification                 `toml:"notification"`
	Tagging            Tagging                      `toml:"tagging"`
	Detection          Detection                    `toml:"detection"`
	Server             Server                       `toml:"server"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"`
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`
}

// NewConfig returns a Config holding the defaults; configuration files and
// environment variables are applied on top by LoadConfig.
func NewConfig() *Config {
	return &Config{
		Application: Application{
			Name:      "media-tagger",
			Provider:  ProviderAWS,
			Region:    "us-east-1",
			Telemetry: TelemetryNone,
		},
		Storage: Storage{
			ThumbnailScale:    0.5,
			PresignTTLSeconds: 300,
		},
		TagStore: TagStore{
			Kind:  TagStoreDynamoDB,
			Table: "BirdDatabase",
		},
		Notification: Notification{
			Kind:    NotificationSNS,
			Subject: "New Bird Insert",
		},
		Tagging: Tagging{
			FunctionName: "auto_tag",
			Invocation:   InvocationLambda,
		},
		Detection: Detection{
			Backend:             DetectionBackendServer,
			ModelPath:           "model.pt",
			Endpoint:            "http://localhost:8501",
			ConfidenceThreshold: detection.DefaultConfidenceThreshold,
			FramesToSample:      detection.DefaultFramesToSample,
			FrameSkipRate:       detection.DefaultFrameSkipRate,
			FFmpegCommand:       "ffmpeg",
			FFprobeCommand:      "ffprobe",
		},
		Server: Server{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
			MaxUploadMB:    100,
		},
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
}
