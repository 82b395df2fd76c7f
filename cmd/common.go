/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/valpere/fragtran/internal/config"
	"github.com/valpere/fragtran/internal/session"
	"github.com/valpere/fragtran/internal/translator"
)

var defaultModels = map[string]string{
	"ollama":   "llama3.2",
	"lmstudio": "local-model",
}

// buildBackend constructs the translation service named by the settings.
// LLM providers come back as a Backend, conventional APIs as a
// MachineTranslator; exactly one of the two is non-nil.
func buildBackend(s *config.Settings, log *logrus.Logger) (translator.Backend, translator.MachineTranslator, error) {
	switch s.Provider {
	case "ollama":
		return translator.NewOllama(s.OllamaBaseURL, log), nil, nil
	case "lmstudio":
		return translator.NewLMStudio(s.LMStudioBaseURL), nil, nil
	case "openrouter":
		if s.OpenRouterAPIKey == "" {
			return nil, nil, fmt.Errorf("openrouter requires an API key")
		}
		return translator.NewOpenRouter(s.OpenRouterAPIKey, ""), nil, nil
	case "deepl":
		if s.DeepLAPIKey == "" {
			return nil, nil, fmt.Errorf("deepl requires an API key")
		}
		return nil, translator.NewDeepL(s.DeepLAPIKey, ""), nil
	case "google":
		return nil, translator.NewGoogle(s.GoogleCredentials), nil
	default:
		return nil, nil, fmt.Errorf("unknown provider: %s (have: ollama, lmstudio, openrouter, deepl, google)", s.Provider)
	}
}

// detectFileType maps a file name to a session file type by extension.
func detectFileType(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		return session.FileTypeEPUB, nil
	case ".srt":
		return session.FileTypeSRT, nil
	default:
		return "", fmt.Errorf("unsupported file type %q (need .epub or .srt)", filepath.Ext(path))
	}
}

// newLogger builds the shared logger honouring the global verbosity flag.
func newLogger() *logrus.Logger {
	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
