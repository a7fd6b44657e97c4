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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"google.golang.org/genai"
)

const geminiPrompt = `Detect every instance of the following labels in the image: %s.
Respond with a JSON array with one element per detected instance, each of the form
{"label": "<one of the labels>", "confidence": <number between 0 and 1>}.
Respond with [] when none of the labels are present.`

// ContentGenerator is the subset of a generative model used for detection.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error)
}

// GeminiLoader runs detection with a multimodal generative model. The model
// path names a label file, one class per line; line order defines class ids.
type GeminiLoader struct {
	generator ContentGenerator
}

func NewGeminiLoader(generator ContentGenerator) *GeminiLoader {
	return &GeminiLoader{generator: generator}
}

func (l *GeminiLoader) Load(_ context.Context, modelPath string) (Model, error) {
	f, err := os.Open(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open label file: %w", err)
	}
	defer f.Close()

	m := &geminiModel{generator: l.generator, names: make(map[int]string), ids: make(map[string]int)}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		label := strings.TrimSpace(scanner.Text())
		if label == "" || strings.HasPrefix(label, "#") {
			continue
		}
		id := len(m.names)
		m.names[id] = label
		m.ids[strings.ToLower(label)] = id
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(m.names) == 0 {
		return nil, errors.New("label file has no labels")
	}
	return m, nil
}

type geminiModel struct {
	generator ContentGenerator
	names     map[int]string
	ids       map[string]int
}

type geminiDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (m *geminiModel) Names() map[int]string {
	return m.names
}

func (m *geminiModel) Predict(ctx context.Context, img image.Image) ([]Prediction, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(m.names))
	for i := 0; i < len(m.names); i++ {
		labels = append(labels, m.names[i])
	}
	content := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(buf.Bytes(), "image/jpeg"),
			genai.NewPartFromText(fmt.Sprintf(geminiPrompt, strings.Join(labels, ", "))),
		}, genai.RoleUser),
	}

	resp, err := m.generator.GenerateContent(ctx, content)
	if err != nil {
		return nil, err
	}

	value := ""
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				value += part.Text
			}
		}
	}
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "```json")
	value = strings.TrimSuffix(value, "```")

	var detections []geminiDetection
	if err := json.Unmarshal([]byte(value), &detections); err != nil {
		return nil, fmt.Errorf("unparseable model response: %w", err)
	}

	out := make([]Prediction, 0, len(detections))
	for _, d := range detections {
		id, ok := m.ids[strings.ToLower(strings.TrimSpace(d.Label))]
		if !ok {
			id = -1
		}
		out = append(out, Prediction{ClassID: id, Confidence: d.Confidence})
	}
	return out, nil
}
