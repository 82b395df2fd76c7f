package translator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float32  `json:"temperature"`
	Stop        []string `json:"stop"`
}

// chatServer serves an OpenAI-compatible /v1/chat/completions endpoint that
// answers with content and records the request.
func chatServer(t *testing.T, content string, got *chatRequest) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decoding chat request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
		})
	})
	return httptest.NewServer(mux)
}

func TestLMStudio_Translate(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, `"Привіт, світе."`, &got)
	defer srv.Close()

	b := NewLMStudio(srv.URL + "/v1")
	text, err := b.Translate(context.Background(), Request{
		Instruction: "Translate from English to Ukrainian.",
		Context:     "Earlier text.",
		Text:        "Hello, world.",
		Temperature: 0.4,
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	if text != "Привіт, світе." {
		t.Errorf("Translate = %q, want quote wrapping removed", text)
	}
	if got.Model != "local-model" {
		t.Errorf("model = %q, want the default when unset", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if got.Messages[1].Content != "Translate ONLY this:\nHello, world." {
		t.Errorf("user message = %q", got.Messages[1].Content)
	}
	if len(got.Stop) != 1 || got.Stop[0] != "\n\n" {
		t.Errorf("stop = %v", got.Stop)
	}
	if got.Temperature != 0.4 {
		t.Errorf("temperature = %v", got.Temperature)
	}
}

func TestLMStudio_NoChoices(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "chatcmpl-test", "object": "chat.completion",
			"choices": []interface{}{},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := NewLMStudio(srv.URL + "/v1")
	_, err := b.Translate(context.Background(), Request{Text: "Hi"})
	if !errors.Is(err, ErrEmptyResult) {
		t.Errorf("error = %v, want ErrEmptyResult", err)
	}
}

func TestOpenRouter_Translate(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, "Привіт, світе.", &got)
	defer srv.Close()

	b := NewOpenRouter("or-key", srv.URL+"/v1")
	b.pause = 0

	text, err := b.Translate(context.Background(), Request{
		Instruction: "Translate from English to Ukrainian.",
		Text:        "Hello, world.",
		Model:       "meta-llama/llama-3-8b-instruct:free",
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if text != "Привіт, світе." {
		t.Errorf("Translate = %q", text)
	}
	if got.Model != "meta-llama/llama-3-8b-instruct:free" {
		t.Errorf("model = %q", got.Model)
	}
}

func TestOpenRouter_MissingKey(t *testing.T) {
	b := NewOpenRouter("", "http://unused")
	_, err := b.Translate(context.Background(), Request{Text: "Hi", Model: "m"})
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("error = %v, want ErrMissingCredential", err)
	}
}

func TestOpenRouter_PauseHonorsCancellation(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, "Привіт.", &got)
	defer srv.Close()

	b := NewOpenRouter("or-key", srv.URL+"/v1")
	b.pause = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Translate(ctx, Request{Text: "Hi", Model: "m"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}
