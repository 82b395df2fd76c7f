package translator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	deepLFreeBaseURL = "https://api-free.deepl.com"
	deepLProBaseURL  = "https://api.deepl.com"
)

var (
	// ErrInvalidCredential is returned when DeepL rejects the API key (403).
	ErrInvalidCredential = errors.New("invalid API key")
	// ErrQuotaExceeded is returned when the DeepL character quota for the
	// billing period is used up (456).
	ErrQuotaExceeded = errors.New("translation quota exceeded")
)

// DeepL is a MachineTranslator over the DeepL v2 REST API.
type DeepL struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewDeepL returns a DeepL translator. When baseURL is empty the endpoint is
// picked from the key itself: free-tier keys carry the ":fx" suffix.
func NewDeepL(apiKey, baseURL string) *DeepL {
	if baseURL == "" {
		if strings.HasSuffix(apiKey, ":fx") {
			baseURL = deepLFreeBaseURL
		} else {
			baseURL = deepLProBaseURL
		}
	}
	return &DeepL{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (b *DeepL) Name() string { return "deepl" }

func (b *DeepL) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if b.apiKey == "" {
		return "", fmt.Errorf("deepl: %w", ErrMissingCredential)
	}

	form := url.Values{}
	form.Set("text", text)
	form.Set("target_lang", strings.ToUpper(targetLang))
	if sourceLang != "" && sourceLang != "auto" {
		form.Set("source_lang", strings.ToUpper(sourceLang))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/v2/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create translate request: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+b.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepl request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return "", fmt.Errorf("deepl: %w", ErrInvalidCredential)
	case 456:
		return "", fmt.Errorf("deepl: %w", ErrQuotaExceeded)
	default:
		return "", fmt.Errorf("deepl returned status %d", resp.StatusCode)
	}

	var out struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode translate response: %w", err)
	}
	if len(out.Translations) == 0 || out.Translations[0].Text == "" {
		return "", ErrEmptyResult
	}
	return out.Translations[0].Text, nil
}
