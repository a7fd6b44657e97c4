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
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tdontdon/fit5225/internal/core/model"
)

// DynamoDBAPI is the part of the DynamoDB client used here.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoRecordStore keeps Tag Records in a DynamoDB table with partition key
// "url" and sort key "type".
type DynamoRecordStore struct {
	client DynamoDBAPI
	table  string
}

func NewDynamoRecordStore(client DynamoDBAPI, table string) *DynamoRecordStore {
	return &DynamoRecordStore{client: client, table: table}
}

func (s *DynamoRecordStore) key(url string, mediaType model.MediaType) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"url":  &types.AttributeValueMemberS{Value: url},
		"type": &types.AttributeValueMemberS{Value: string(mediaType)},
	}
}

// GetRecord reads the item for (url, mediaType). Numbers are decoded as
// attributevalue.Number so their precision survives until normalization.
func (s *DynamoRecordStore) GetRecord(ctx context.Context, url string, mediaType model.MediaType) (map[string]interface{}, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(url, mediaType),
	})
	if err != nil {
		return nil, false, fmt.Errorf("dynamodb get %s: %w", s.table, err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}

	record := make(map[string]interface{})
	err = attributevalue.UnmarshalMapWithOptions(out.Item, &record, func(o *attributevalue.DecoderOptions) {
		o.UseNumber = true
	})
	if err != nil {
		return nil, false, fmt.Errorf("dynamodb decode %s: %w", s.table, err)
	}
	return record, true, nil
}

func (s *DynamoRecordStore) PutRecord(ctx context.Context, record *model.TagRecord) (*model.WriteAck, error) {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return nil, fmt.Errorf("dynamodb encode: %w", err)
	}
	out, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb put %s: %w", s.table, err)
	}
	ack := &model.WriteAck{Store: "dynamodb", Table: s.table}
	if out != nil {
		ack.RequestID, _ = awsmiddleware.GetRequestIDMetadata(out.ResultMetadata)
	}
	return ack, nil
}
