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
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/genai"

	"github.com/tdontdon/fit5225/internal/core/cor"
	"github.com/tdontdon/fit5225/internal/core/detection"
	"github.com/tdontdon/fit5225/internal/core/services"
)

// ServiceClients holds the raw cloud clients and the service implementations
// selected by configuration. Clients for a cloud that no selected component
// uses are left nil.
type ServiceClients struct {
	AWSConfig      *aws.Config
	S3Client       *s3.Client
	DynamoDBClient *dynamodb.Client
	SNSClient      *sns.Client
	LambdaClient   *lambda.Client

	StorageClient  *storage.Client
	PubsubClient   *pubsub.Client
	GenAIClient    *genai.Client
	BigQueryClient *bigquery.Client
	IAMClient      *credentials.IamCredentialsClient

	HTTPClient *http.Client

	ObjectStore    services.ObjectStore
	RecordStore    services.RecordStore
	Notifier       services.Notifier
	TaggingInvoker services.TaggingInvoker
	Detector       *detection.Detector

	PubSubListeners map[string]*PubSubListener
	AgentModels     map[string]*QuotaAwareGenerativeAIModel
}

// Close releases the Google clients. The AWS clients hold no resources.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BigQueryClient != nil {
		_ = c.BigQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// UseLocalTagging routes tagging invocations to an in-process handler.
func (c *ServiceClients) UseLocalTagging(handler services.TaggingHandler) {
	c.TaggingInvoker = services.NewLocalInvoker(handler)
}

// SetListenerCommand attaches command to every configured listener.
func (c *ServiceClients) SetListenerCommand(command cor.Command) {
	for _, listener := range c.PubSubListeners {
		listener.SetCommand(command)
	}
}

func (c *ServiceClients) needsGoogle(config *Config) bool {
	return config.Application.Provider == ProviderGCP ||
		config.TagStore.Kind == TagStoreBigQuery ||
		(config.Notification.Kind == NotificationPubSub && config.Notification.Topic != "") ||
		config.Detection.Backend == DetectionBackendGemini ||
		len(config.TopicSubscriptions) > 0
}

// NewServiceClients creates the clients needed by config and wires the
// object store, record store, notifier, tagging invoker and detector. With
// tagging.invocation = "local" the invoker is left nil until
// UseLocalTagging is called.
func NewServiceClients(ctx context.Context, config *Config) (*ServiceClients, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	clients := &ServiceClients{
		HTTPClient:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		PubSubListeners: make(map[string]*PubSubListener),
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
	}

	if err := clients.initAWS(ctx, config); err != nil {
		return nil, err
	}
	if clients.needsGoogle(config) {
		if err := clients.initGoogle(ctx, config); err != nil {
			clients.Close()
			return nil, err
		}
	}

	switch config.Application.Provider {
	case ProviderAWS:
		clients.ObjectStore = services.NewS3ObjectStoreFromClient(clients.S3Client, config.Application.Region)
	case ProviderGCP:
		clients.ObjectStore = services.NewGCSObjectStore(clients.StorageClient, clients.IAMClient, config.Application.SignerServiceAccountEmail)
	}

	switch config.TagStore.Kind {
	case TagStoreDynamoDB:
		clients.RecordStore = services.NewDynamoRecordStore(clients.DynamoDBClient, config.TagStore.Table)
	case TagStoreBigQuery:
		clients.RecordStore = services.NewBigQueryRecordStore(clients.BigQueryClient, config.TagStore.Dataset, config.TagStore.Table)
	}

	if config.Notification.Topic != "" {
		switch config.Notification.Kind {
		case NotificationSNS:
			clients.Notifier = services.NewSNSNotifier(clients.SNSClient, config.Notification.Topic)
		case NotificationPubSub:
			clients.Notifier = services.NewPubSubNotifier(clients.PubsubClient.Topic(config.Notification.Topic))
		}
	} else {
		slog.Info("no notification topic configured, notifications disabled")
	}

	if config.Tagging.Invocation == InvocationLambda {
		clients.TaggingInvoker = services.NewLambdaInvoker(clients.LambdaClient, config.Tagging.FunctionName)
	}

	loader, err := clients.newDetectionLoader(config)
	if err != nil {
		clients.Close()
		return nil, err
	}
	clients.Detector = detection.NewDetector(
		loader,
		detection.NewFFmpegFrameOpener(config.Detection.FFmpegCommand, config.Detection.FFprobeCommand),
		detection.Options{
			ModelPath:      config.Detection.ModelPath,
			FramesToSample: config.Detection.FramesToSample,
			FrameSkipRate:  config.Detection.FrameSkipRate,
		})

	return clients, nil
}

func (c *ServiceClients) initAWS(ctx context.Context, config *Config) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Application.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	c.AWSConfig = &awsCfg
	c.S3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	c.DynamoDBClient = dynamodb.NewFromConfig(awsCfg)
	c.SNSClient = sns.NewFromConfig(awsCfg)
	c.LambdaClient = lambda.NewFromConfig(awsCfg)
	return nil
}

func (c *ServiceClients) initGoogle(ctx context.Context, config *Config) error {
	var err error
	if c.StorageClient, err = storage.NewClient(ctx); err != nil {
		return err
	}
	if c.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
		return err
	}
	if c.BigQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
		return err
	}
	if config.Application.SignerServiceAccountEmail != "" {
		if c.IAMClient, err = credentials.NewIamCredentialsClient(ctx); err != nil {
			return err
		}
	}

	if len(config.AgentModels) > 0 {
		c.GenAIClient, err = genai.NewClient(ctx, &genai.ClientConfig{
			Project:  config.Application.GoogleProjectId,
			Location: config.Application.GoogleLocation,
			Backend:  genai.BackendVertexAI,
		})
		if err != nil {
			slog.Error("error creating genai client", "error", err)
			return err
		}
		for key, values := range config.AgentModels {
			generateConfig := &genai.GenerateContentConfig{
				Temperature:      genai.Ptr[float32](values.Temperature),
				TopP:             genai.Ptr[float32](values.TopP),
				TopK:             genai.Ptr[float32](values.TopK),
				MaxOutputTokens:  values.MaxTokens,
				SafetySettings:   DefaultSafetySettings,
				ResponseMIMEType: values.OutputFormat,
			}
			if values.SystemInstructions != "" {
				generateConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}}
			}
			c.AgentModels[key] = NewQuotaAwareModel(generateConfig, values.Model, c.GenAIClient.Models, values.RateLimit)
		}
	}

	for key, values := range config.TopicSubscriptions {
		c.PubSubListeners[key] = NewPubSubListener(c.PubsubClient, values.Name, nil)
	}
	return nil
}

func (c *ServiceClients) newDetectionLoader(config *Config) (detection.Loader, error) {
	switch config.Detection.Backend {
	case DetectionBackendServer:
		return detection.NewServerLoader(config.Detection.Endpoint, c.HTTPClient), nil
	case DetectionBackendGemini:
		agent, ok := c.AgentModels[config.Detection.AgentModel]
		if !ok {
			return nil, fmt.Errorf("agent model %q is not available", config.Detection.AgentModel)
		}
		return detection.NewGeminiLoader(agent), nil
	}
	return nil, fmt.Errorf("unknown detection backend %q", config.Detection.Backend)
}
