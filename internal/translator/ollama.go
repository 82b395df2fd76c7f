package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/valpere/fragtran/internal/postprocess"
)

// ollamaStop are generation stop tokens. Local models trained on ChatML leak
// these separators into /api/generate output otherwise.
var ollamaStop = []string{"<|im_sep|>", "<|im_end|>", "<|im_start|>"}

// Ollama talks to a local Ollama server through /api/generate.
type Ollama struct {
	baseURL string
	client  *http.Client
	log     *logrus.Logger
}

// NewOllama returns an Ollama backend. The HTTP client carries no timeout:
// local models can legitimately take minutes per fragment, so cancellation is
// the caller's context's job.
func NewOllama(baseURL string, log *logrus.Logger) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		log:     log,
	}
}

func (b *Ollama) Name() string { return "ollama" }

// ResolveModel checks the requested model against /api/tags. An exact match
// is kept; otherwise a pulled model sharing the same base name (the part
// before the ":" tag) substitutes for it. No candidate at all is an error
// listing what the server has.
func (b *Ollama) ResolveModel(ctx context.Context, model string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create tags request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama not reachable at %s: %w", b.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama tags returned status %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return "", fmt.Errorf("failed to decode tags response: %w", err)
	}

	available := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name == model {
			return model, nil
		}
		available = append(available, m.Name)
	}

	base := strings.SplitN(model, ":", 2)[0]
	for _, name := range available {
		if strings.SplitN(name, ":", 2)[0] == base {
			b.log.WithFields(logrus.Fields{
				"requested": model,
				"using":     name,
			}).Warn("requested model not pulled, substituting")
			return name, nil
		}
	}
	return "", fmt.Errorf("model %q not available on ollama server (have: %s)",
		model, strings.Join(available, ", "))
}

func (b *Ollama) Translate(ctx context.Context, req Request) (string, error) {
	model, err := b.ResolveModel(ctx, req.Model)
	if err != nil {
		return "", err
	}

	payload := map[string]interface{}{
		"model":  model,
		"prompt": req.Prompts.RenderSingle(req.Instruction, req.Context, req.Text),
		"stream": false,
		"options": map[string]interface{}{
			"temperature": req.Temperature,
			"stop":        ollamaStop,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama generate returned status %d", resp.StatusCode)
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}

	text := postprocess.Clean(out.Response)
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}
