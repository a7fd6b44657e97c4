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

// Package api exposes the pipeline over HTTP for the long running server:
// direct uploads, raw upload triggers, tagging requests and tag lookups.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"

	"github.com/tdontdon/fit5225/internal/core/model"
	"github.com/tdontdon/fit5225/internal/core/services"
)

// IntakeHandler runs the intake stage for one trigger.
type IntakeHandler interface {
	Handle(ctx context.Context, trigger interface{}) *model.Envelope
}

// Handlers holds what the routes need.
type Handlers struct {
	Intake         IntakeHandler
	Tagging        services.TaggingHandler
	Objects        services.ObjectStore
	Records        services.RecordStore
	UploadBucket   string
	MaxUploadBytes int64
}

// UploadResult reports the outcome for one uploaded file.
type UploadResult struct {
	Filename string          `json:"filename"`
	Key      string          `json:"key"`
	Result   *model.Envelope `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Register mounts the routes on r.
func Register(r *gin.RouterGroup, h *Handlers) {
	r.POST("/uploads", h.upload)
	r.POST("/intake", h.intake)
	r.POST("/tagging", h.tagging)
	r.GET("/tags", h.lookup)
}

func writeEnvelope(c *gin.Context, envelope *model.Envelope) {
	for k, v := range envelope.Headers {
		c.Header(k, v)
	}
	c.JSON(envelope.StatusCode, envelope)
}

func writeFailure(c *gin.Context, err *model.PipelineError) {
	c.JSON(err.StatusCode(), model.FailureBody{Error: err.Error(), Kind: err.Kind})
}

// upload stores every file of the "files" form field in the upload bucket
// and runs intake for it.
func (h *Handlers) upload(c *gin.Context) {
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}
	form, err := c.MultipartForm()
	if err != nil {
		writeFailure(c, model.NewPipelineError(model.ErrKindInvalidRequest, "upload", err))
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		writeFailure(c, model.NewPipelineError(model.ErrKindInvalidRequest, "upload", fmt.Errorf("no files in form field %q", "files")))
		return
	}

	results := make([]UploadResult, 0, len(files))
	for _, file := range files {
		key := path.Base(file.Filename)
		result := UploadResult{Filename: file.Filename, Key: key}
		if _, err := model.ClassifyKey(key); err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}
		if err := h.store(c.Request.Context(), key, file); err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to store upload", "key", key, "error", err)
			result.Error = err.Error()
			results = append(results, result)
			continue
		}
		result.Result = h.Intake.Handle(c.Request.Context(), &model.UploadEvent{Bucket: h.UploadBucket, Key: key})
		results = append(results, result)
	}
	c.JSON(http.StatusOK, results)
}

func (h *Handlers) store(ctx context.Context, key string, file *multipart.FileHeader) error {
	f, err := file.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	contentType := file.Header.Get("Content-Type")
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		contentType = kind.MIME.Value
	}
	return h.Objects.PutObject(ctx, h.UploadBucket, key, data, contentType)
}

// intake accepts an S3 event or a Cloud Storage notification as the body.
func (h *Handlers) intake(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeFailure(c, model.NewPipelineError(model.ErrKindTrigger, "intake", err))
		return
	}
	writeEnvelope(c, h.Intake.Handle(c.Request.Context(), body))
}

func (h *Handlers) tagging(c *gin.Context) {
	if h.Tagging == nil {
		c.Status(http.StatusNotFound)
		return
	}
	request := &model.TaggingRequest{}
	if err := c.ShouldBindJSON(request); err != nil {
		writeFailure(c, model.NewPipelineError(model.ErrKindInvalidRequest, "tagging", err))
		return
	}
	writeEnvelope(c, h.Tagging.Handle(c.Request.Context(), request))
}

// lookup returns the stored record for ?url=&type=.
func (h *Handlers) lookup(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		writeFailure(c, model.NewPipelineError(model.ErrKindInvalidRequest, "lookup", fmt.Errorf("url is required")))
		return
	}
	mediaType, err := model.ParseMediaType(c.Query("type"))
	if err != nil {
		writeFailure(c, model.AsPipelineError(err, model.ErrKindInvalidRequest, "lookup"))
		return
	}
	record, found, err := h.Records.GetRecord(c.Request.Context(), url, mediaType)
	if err != nil {
		writeFailure(c, model.NewPipelineError(model.ErrKindPersistence, "lookup", err))
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, model.NormalizeNumbers(record))
}
