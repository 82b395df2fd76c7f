package translator

import (
	"context"
	"fmt"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// Google is a MachineTranslator over the Cloud Translation API. The client is
// created per call so credentials can change between runs.
type Google struct {
	credentialsFile string
}

func NewGoogle(credentialsFile string) *Google {
	return &Google{credentialsFile: credentialsFile}
}

func (b *Google) Name() string { return "google" }

func (b *Google) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	target, err := language.Parse(targetLang)
	if err != nil {
		return "", fmt.Errorf("invalid target language %q: %w", targetLang, err)
	}

	var opts []option.ClientOption
	if b.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(b.credentialsFile))
	}
	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create translate client: %w", err)
	}
	defer client.Close()

	var topts *translate.Options
	if sourceLang != "" && sourceLang != "auto" {
		source, err := language.Parse(sourceLang)
		if err != nil {
			return "", fmt.Errorf("invalid source language %q: %w", sourceLang, err)
		}
		topts = &translate.Options{Source: source}
	}

	translations, err := client.Translate(ctx, []string{text}, target, topts)
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}
	if len(translations) == 0 || translations[0].Text == "" {
		return "", ErrEmptyResult
	}
	return translations[0].Text, nil
}
