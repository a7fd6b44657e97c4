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

package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/h2non/filetype"

	"github.com/tdontdon/fit5225/internal/core/cor"
	"github.com/tdontdon/fit5225/internal/core/model"
	"github.com/tdontdon/fit5225/internal/core/services"
)

const (
	DefaultPresignTTL  = 5 * time.Minute
	TempFilePrefix     = "tagging-"
	errDownloadMessage = "Failed to download image or video from presigned URL"
)

// PresignedDownload fetches the original object through a short lived signed
// GET link into a temporary file that keeps the object's extension. The file
// is registered on the context for removal.
type PresignedDownload struct {
	cor.BaseCommand
	store  services.ObjectStore
	client *http.Client
	ttl    time.Duration
}

func NewPresignedDownload(name string, store services.ObjectStore, client *http.Client, ttl time.Duration) *PresignedDownload {
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &PresignedDownload{BaseCommand: *cor.NewBaseCommand(name), store: store, client: client, ttl: ttl}
}

func (c *PresignedDownload) Execute(context cor.Context) {
	request := context.Get(c.GetInputParam()).(*model.TaggingRequest)
	ctx := context.GetContext()

	link, err := c.store.PresignGet(ctx, request.Bucket, request.Filename, c.ttl)
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindTransfer, c.GetName(), err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindTransfer, c.GetName(), err))
		return
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindTransfer, c.GetName(), fmt.Errorf("%s: %w", errDownloadMessage, err)))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.Fail(context, model.NewPipelineError(model.ErrKindTransfer, c.GetName(),
			fmt.Errorf("%s: status %d", errDownloadMessage, resp.StatusCode)))
		return
	}

	pattern := TempFilePrefix + "*"
	if ext := model.Extension(request.Filename); ext != "" {
		pattern += "." + ext
	}
	tempFile, err := os.CreateTemp("", pattern)
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindTransfer, c.GetName(), fmt.Errorf("could not create temp file: %w", err)))
		return
	}
	context.AddTempFile(tempFile.Name())

	written, err := io.Copy(tempFile, resp.Body)
	closeErr := tempFile.Close()
	if err = errors.Join(err, closeErr); err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindTransfer, c.GetName(), err))
		return
	}

	slog.InfoContext(ctx, "downloaded original",
		"bucket", request.Bucket, "key", request.Filename, "file", tempFile.Name(), "bytes", written, "mime", sniffMIME(tempFile.Name()))
	c.Succeed(context)
	context.Add(ParamLocalMediaFile, tempFile.Name())
	context.Add(c.GetOutputParam(), tempFile.Name())
}

func sniffMIME(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	head := make([]byte, 261)
	n, _ := io.ReadFull(f, head)
	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return "unknown"
	}
	return kind.MIME.Value
}
