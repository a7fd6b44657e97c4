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
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestServerLoader(t *testing.T) {
	var detectBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "birds.pt", r.URL.Query().Get("model"))
		switch r.URL.Path {
		case "/v1/models/names":
			_ = json.NewEncoder(w).Encode(map[string]string{"0": "Robin", "1": "Jay"})
		case "/v1/models/detect":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
			detectBody, _ = io.ReadAll(r.Body)
			_, _ = w.Write([]byte(`{"predictions":[{"class_id":0,"confidence":0.93,"box":[1,2,3,4]},{"class_id":1,"confidence":0.4}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m, err := NewServerLoader(srv.URL+"/", srv.Client()).Load(context.Background(), "birds.pt")
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "Robin", 1: "Jay"}, m.Names())

	preds, err := m.Predict(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, 0, preds[0].ClassID)
	assert.Equal(t, image.Rect(1, 2, 3, 4), preds[0].Box)
	assert.InDelta(t, 0.4, preds[1].Confidence, 1e-9)
	assert.NotEmpty(t, detectBody)
}

func TestServerLoaderRejectsUnknownModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewServerLoader(srv.URL, srv.Client()).Load(context.Background(), "missing.pt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

type stubGenerator struct {
	text string
	err  error
	seen []*genai.Content
}

func (g *stubGenerator) GenerateContent(_ context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	g.seen = content
	if g.err != nil {
		return nil, g.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: g.text}}}}},
	}, nil
}

func writeLabels(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestGeminiLoader(t *testing.T) {
	gen := &stubGenerator{text: "```json\n[{\"label\":\"robin\",\"confidence\":0.9},{\"label\":\"Heron\",\"confidence\":0.8}]\n```"}
	m, err := NewGeminiLoader(gen).Load(context.Background(), writeLabels(t, "# birds\nRobin\n\nJay\n"))
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "Robin", 1: "Jay"}, m.Names())

	preds, err := m.Predict(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	assert.Equal(t, []Prediction{{ClassID: 0, Confidence: 0.9}, {ClassID: -1, Confidence: 0.8}}, preds)

	require.Len(t, gen.seen, 1)
	require.Len(t, gen.seen[0].Parts, 2)
	assert.Equal(t, "image/jpeg", gen.seen[0].Parts[0].InlineData.MIMEType)
	assert.Contains(t, gen.seen[0].Parts[1].Text, "Robin, Jay")
}

func TestGeminiLoaderErrors(t *testing.T) {
	_, err := NewGeminiLoader(&stubGenerator{}).Load(context.Background(), writeLabels(t, "\n# none\n"))
	require.Error(t, err)

	m, err := NewGeminiLoader(&stubGenerator{err: errors.New("quota")}).Load(context.Background(), writeLabels(t, "Robin\n"))
	require.NoError(t, err)
	_, err = m.Predict(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)))
	require.Error(t, err)

	m, err = NewGeminiLoader(&stubGenerator{text: "no birds here"}).Load(context.Background(), writeLabels(t, "Robin\n"))
	require.NoError(t, err)
	_, err = m.Predict(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)))
	require.Error(t, err)
}
