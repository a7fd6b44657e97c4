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
	"io"
	"net/url"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
)

// GCSObjectStore is the ObjectStore backed by Google Cloud Storage. When a
// signer service account is configured, signed URLs are signed remotely with
// the IAM credentials API so the process does not need a private key.
type GCSObjectStore struct {
	client      *storage.Client
	iam         *credentials.IamCredentialsClient
	signerEmail string
}

func NewGCSObjectStore(client *storage.Client, iam *credentials.IamCredentialsClient, signerEmail string) *GCSObjectStore {
	return &GCSObjectStore{client: client, iam: iam, signerEmail: signerEmail}
}

func (s *GCSObjectStore) GetObject(ctx context.Context, bucket string, key string) ([]byte, error) {
	reader, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs read %s/%s: %w", bucket, key, err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func (s *GCSObjectStore) PutObject(ctx context.Context, bucket string, key string, data []byte, contentType string) error {
	writer := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("gcs write %s/%s: %w", bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("gcs write %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *GCSObjectStore) PresignGet(ctx context.Context, bucket string, key string, ttl time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	}
	if s.signerEmail != "" && s.iam != nil {
		opts.GoogleAccessID = s.signerEmail
		opts.SignBytes = func(payload []byte) ([]byte, error) {
			resp, err := s.iam.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.signerEmail),
				Payload: payload,
			})
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}
	u, err := s.client.Bucket(bucket).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", bucket, key, err)
	}
	return u, nil
}

func (s *GCSObjectStore) PublicURL(bucket string, key string) string {
	return (&url.URL{Scheme: "https", Host: "storage.googleapis.com", Path: "/" + bucket + "/" + key}).String()
}
