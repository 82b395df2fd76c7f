// Package config loads the application settings file with viper. Every
// setting has a working default so the tool runs against a local Ollama with
// no file at all; flags override file values, file values override defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Settings holds every tunable of a translation run.
type Settings struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`

	OllamaBaseURL   string `mapstructure:"ollama_base_url"`
	LMStudioBaseURL string `mapstructure:"lmstudio_base_url"`

	OpenRouterAPIKey  string `mapstructure:"openrouter_api_key"`
	DeepLAPIKey       string `mapstructure:"deepl_api_key"`
	GoogleCredentials string `mapstructure:"google_credentials"`

	SourceLang string `mapstructure:"source_lang"`
	TargetLang string `mapstructure:"target_lang"`

	ContextSize int     `mapstructure:"context_size"`
	Temperature float64 `mapstructure:"temperature"`
	MaxAttempts int     `mapstructure:"max_attempts"`
	AutoFix     bool    `mapstructure:"auto_fix"`

	MemoryPath string `mapstructure:"memory_path"`

	SystemPrompt       string `mapstructure:"system_prompt"`
	CustomOllamaPrompt string `mapstructure:"custom_ollama_prompt"`
	CustomSystemPrompt string `mapstructure:"custom_system_prompt"`
	CustomUserPrompt   string `mapstructure:"custom_user_prompt"`
}

// Load reads settings from path, or from fragtran.yaml in the working
// directory and $HOME/.config/fragtran when path is empty. A missing default
// file is fine; a missing explicit file is an error. Environment variables
// prefixed FRAGTRAN_ override file values.
func Load(path string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("provider", "ollama")
	v.SetDefault("ollama_base_url", "http://localhost:11434")
	v.SetDefault("lmstudio_base_url", "http://localhost:1234/v1")
	v.SetDefault("source_lang", "auto")
	v.SetDefault("context_size", 5)
	v.SetDefault("temperature", 0.3)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("auto_fix", true)
	v.SetDefault("memory_path", "fragtran_memory.db")
	v.SetDefault("system_prompt", DefaultSystemPrompt)

	// Keys without a meaningful default still need registering, or
	// AutomaticEnv never surfaces them through Unmarshal.
	for _, key := range []string{
		"model", "target_lang",
		"openrouter_api_key", "deepl_api_key", "google_credentials",
		"custom_ollama_prompt", "custom_system_prompt", "custom_user_prompt",
	} {
		v.SetDefault(key, "")
	}

	v.SetEnvPrefix("FRAGTRAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("fragtran")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/fragtran")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return &s, nil
}

// DefaultSystemPrompt is the translation instruction used when none is
// configured. The target language is appended by the caller.
const DefaultSystemPrompt = "You are a professional translator. Translate the text accurately, " +
	"preserving the meaning, tone, formatting and any numbers, placeholders or URLs. " +
	"Output ONLY the translation, with no explanations."

// Instruction builds the system prompt for a run, appending the language pair
// to the configured base prompt.
func (s *Settings) Instruction() string {
	base := s.SystemPrompt
	if base == "" {
		base = DefaultSystemPrompt
	}
	if s.TargetLang == "" {
		return base
	}
	if s.SourceLang != "" && s.SourceLang != "auto" {
		return fmt.Sprintf("%s\nTranslate from %s to %s.", base, s.SourceLang, s.TargetLang)
	}
	return fmt.Sprintf("%s\nTranslate to %s.", base, s.TargetLang)
}
