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
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/tdontdon/fit5225/internal/core/model"
)

// LambdaAPI is the part of the Lambda client used here.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaInvoker calls the tagging function with a RequestResponse invocation
// and waits for its envelope.
type LambdaInvoker struct {
	client       LambdaAPI
	functionName string
}

func NewLambdaInvoker(client LambdaAPI, functionName string) *LambdaInvoker {
	return &LambdaInvoker{client: client, functionName: functionName}
}

func (l *LambdaInvoker) Invoke(ctx context.Context, request *model.TaggingRequest) (*model.Envelope, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	out, err := l.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(l.functionName),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("lambda invoke %s: %w", l.functionName, err)
	}
	if out.FunctionError != nil {
		return nil, fmt.Errorf("lambda %s failed with %s: %s", l.functionName, aws.ToString(out.FunctionError), string(out.Payload))
	}

	envelope := &model.Envelope{}
	if err := json.Unmarshal(out.Payload, envelope); err != nil {
		return nil, fmt.Errorf("lambda %s returned an unreadable response: %w", l.functionName, err)
	}
	return envelope, nil
}

// LocalInvoker runs the tagging stage in process. The request and response
// are passed through JSON so both sides see exactly what a remote call would
// carry.
type LocalInvoker struct {
	handler TaggingHandler
}

func NewLocalInvoker(handler TaggingHandler) *LocalInvoker {
	return &LocalInvoker{handler: handler}
}

func (l *LocalInvoker) Invoke(ctx context.Context, request *model.TaggingRequest) (*model.Envelope, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	decoded := &model.TaggingRequest{}
	if err := json.Unmarshal(payload, decoded); err != nil {
		return nil, err
	}

	response, err := json.Marshal(l.handler.Handle(ctx, decoded))
	if err != nil {
		return nil, err
	}
	envelope := &model.Envelope{}
	if err := json.Unmarshal(response, envelope); err != nil {
		return nil, err
	}
	return envelope, nil
}
