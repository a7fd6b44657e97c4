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

package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ServerLoader loads models hosted by an inference server. The server keeps
// the weights; loading resolves the model's class names and binds the
// artifact path to later predictions.
//
//	GET  {endpoint}/v1/models/names?model={path}   -> {"0": "robin", ...}
//	POST {endpoint}/v1/models/detect?model={path}  <- image/jpeg
//	                                               -> {"predictions": [{"class_id": 0, "confidence": 0.91, "box": [x1, y1, x2, y2]}]}
type ServerLoader struct {
	endpoint string
	client   *http.Client
}

// NewServerLoader returns a loader for the server at endpoint. A nil client
// gets an OpenTelemetry instrumented default.
func NewServerLoader(endpoint string, client *http.Client) *ServerLoader {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &ServerLoader{endpoint: strings.TrimSuffix(endpoint, "/"), client: client}
}

func (l *ServerLoader) Load(ctx context.Context, modelPath string) (Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url("names", modelPath), nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach inference server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference server could not load %s: %s", modelPath, readStatus(resp))
	}

	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid class names for %s: %w", modelPath, err)
	}
	names := make(map[int]string, len(raw))
	for k, v := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid class id %q: %w", k, err)
		}
		names[id] = v
	}
	return &serverModel{loader: l, path: modelPath, names: names}, nil
}

func (l *ServerLoader) url(op string, modelPath string) string {
	return fmt.Sprintf("%s/v1/models/%s?model=%s", l.endpoint, op, url.QueryEscape(modelPath))
}

type serverModel struct {
	loader *ServerLoader
	path   string
	names  map[int]string
}

type serverPrediction struct {
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box"`
}

func (m *serverModel) Names() map[int]string {
	return m.names
}

func (m *serverModel) Predict(ctx context.Context, img image.Image) ([]Prediction, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.loader.url("detect", m.path), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := m.loader.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prediction request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prediction failed: %s", readStatus(resp))
	}

	var body struct {
		Predictions []serverPrediction `json:"predictions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid prediction response: %w", err)
	}
	out := make([]Prediction, 0, len(body.Predictions))
	for _, p := range body.Predictions {
		pred := Prediction{ClassID: p.ClassID, Confidence: p.Confidence}
		if len(p.Box) == 4 {
			pred.Box = image.Rect(int(p.Box[0]), int(p.Box[1]), int(p.Box[2]), int(p.Box[3]))
		}
		out = append(out, pred)
	}
	return out, nil
}

func readStatus(resp *http.Response) string {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Sprintf("%d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
