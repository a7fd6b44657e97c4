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

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// TagAttribute names the message attribute carrying the tag list.
const TagAttribute = "tag"

// EncodeJSON marshals v without escaping HTML characters, keeping non ASCII
// label names readable.
func EncodeJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SNSAPI is the part of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes to an SNS topic. The tag list travels as a
// String.Array attribute so subscription filter policies can match on it.
type SNSNotifier struct {
	client   SNSAPI
	topicArn string
}

func NewSNSNotifier(client SNSAPI, topicArn string) *SNSNotifier {
	return &SNSNotifier{client: client, topicArn: topicArn}
}

func (n *SNSNotifier) Publish(ctx context.Context, notification *Notification) (string, error) {
	tags, err := EncodeJSON(notification.Tags)
	if err != nil {
		return "", err
	}
	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Subject:  aws.String(notification.Subject),
		Message:  aws.String(string(notification.Message)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			TagAttribute: {
				DataType:    aws.String("String.Array"),
				StringValue: aws.String(string(tags)),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("sns publish %s: %w", n.topicArn, err)
	}
	return aws.ToString(out.MessageId), nil
}

// PubSubNotifier publishes to a Google Pub/Sub topic. Pub/Sub attributes are
// plain strings, so the tag list is carried JSON encoded.
type PubSubNotifier struct {
	topic *pubsub.Topic
}

func NewPubSubNotifier(topic *pubsub.Topic) *PubSubNotifier {
	return &PubSubNotifier{topic: topic}
}

func (n *PubSubNotifier) Publish(ctx context.Context, notification *Notification) (string, error) {
	tags, err := EncodeJSON(notification.Tags)
	if err != nil {
		return "", err
	}
	result := n.topic.Publish(ctx, &pubsub.Message{
		Data: notification.Message,
		Attributes: map[string]string{
			"subject":    notification.Subject,
			TagAttribute: string(tags),
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("pubsub publish %s: %w", n.topic.ID(), err)
	}
	return id, nil
}
