package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend kinds understood by the dispatcher wiring.
const (
	BackendOpenAI  = "openai"
	BackendBedrock = "bedrock"
	BackendGemini  = "gemini"
)

// ErrInvalidBackends is returned when the backend list cannot be used.
var ErrInvalidBackends = errors.New("config: invalid backends")

// BackendSpec describes one model backend in the dispatch pool.
type BackendSpec struct {
	ID          string            `yaml:"id"`
	Kind        string            `yaml:"kind"`
	Priority    int               `yaml:"priority"`
	Model       string            `yaml:"model"`
	BaseURL     string            `yaml:"base_url"`
	APIKey      string            `yaml:"api_key"`
	APIKeyEnv   string            `yaml:"api_key_env"`
	Headers     map[string]string `yaml:"headers"`
	Temperature *float64          `yaml:"temperature"`
	MaxTokens   int               `yaml:"max_tokens"`
}

type backendsFile struct {
	Backends []BackendSpec `yaml:"backends"`
}

// LoadBackends returns the backend pool: the YAML file named by BACKENDS_FILE
// when set, otherwise the AI_PROVIDER shorthand plus any Gemini/Bedrock keys.
func (c *Config) LoadBackends() ([]BackendSpec, error) {
	var specs []BackendSpec
	if strings.TrimSpace(c.BackendsFile) != "" {
		raw, err := os.ReadFile(c.BackendsFile)
		if err != nil {
			return nil, fmt.Errorf("config: read backends file: %w", err)
		}
		specs, err = ParseBackends(raw)
		if err != nil {
			return nil, err
		}
	} else {
		specs = c.shorthandBackends()
	}

	for i := range specs {
		if specs[i].APIKey == "" && specs[i].APIKeyEnv != "" {
			specs[i].APIKey = os.Getenv(specs[i].APIKeyEnv)
		}
		if specs[i].Temperature == nil {
			t := c.LLMTemperature
			specs[i].Temperature = &t
		}
		if specs[i].MaxTokens <= 0 {
			specs[i].MaxTokens = c.LLMMaxTokens
		}
	}
	if err := validateBackends(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// ParseBackends decodes a YAML backends document.
func ParseBackends(raw []byte) ([]BackendSpec, error) {
	var doc backendsFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackends, err)
	}
	for i := range doc.Backends {
		doc.Backends[i].Kind = strings.ToLower(strings.TrimSpace(doc.Backends[i].Kind))
		doc.Backends[i].ID = strings.TrimSpace(doc.Backends[i].ID)
	}
	return doc.Backends, nil
}

func (c *Config) shorthandBackends() []BackendSpec {
	var specs []BackendSpec
	priority := 0
	next := func() int {
		priority += 10
		return priority
	}

	switch c.AIProvider {
	case "openrouter":
		specs = append(specs, BackendSpec{
			ID:       "openrouter",
			Kind:     BackendOpenAI,
			Priority: next(),
			Model:    firstNonEmpty(c.AIModel, "openrouter/auto"),
			BaseURL:  "https://openrouter.ai/api/v1",
			APIKey:   c.OpenRouterAPIKey,
			Headers: map[string]string{
				"HTTP-Referer": c.OpenRouterReferer,
				"X-Title":      c.OpenRouterTitle,
			},
		})
	case "ollama":
		specs = append(specs, BackendSpec{
			ID:       "ollama",
			Kind:     BackendOpenAI,
			Priority: next(),
			Model:    firstNonEmpty(c.AIModel, "llama3.1"),
			BaseURL:  strings.TrimRight(firstNonEmpty(c.OllamaBase, "http://localhost:11434"), "/") + "/v1",
		})
	case "openai":
		specs = append(specs, BackendSpec{
			ID:       "openai",
			Kind:     BackendOpenAI,
			Priority: next(),
			Model:    firstNonEmpty(c.AIModel, "gpt-4o-mini"),
			APIKey:   c.OpenAIAPIKey,
		})
	}
	if c.GeminiAPIKey != "" {
		specs = append(specs, BackendSpec{
			ID:       "gemini",
			Kind:     BackendGemini,
			Priority: next(),
			Model:    c.GeminiModel,
			APIKey:   c.GeminiAPIKey,
		})
	}
	if c.BedrockModelID != "" {
		specs = append(specs, BackendSpec{
			ID:       "bedrock",
			Kind:     BackendBedrock,
			Priority: next(),
			Model:    c.BedrockModelID,
		})
	}
	return specs
}

func validateBackends(specs []BackendSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("%w: no backends configured", ErrInvalidBackends)
	}
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if spec.ID == "" {
			return fmt.Errorf("%w: backend id is required", ErrInvalidBackends)
		}
		if _, dup := seen[spec.ID]; dup {
			return fmt.Errorf("%w: duplicate backend id %q", ErrInvalidBackends, spec.ID)
		}
		seen[spec.ID] = struct{}{}
		switch spec.Kind {
		case BackendOpenAI, BackendBedrock:
		case BackendGemini:
			if spec.APIKey == "" {
				return fmt.Errorf("%w: gemini backend %q needs an api key", ErrInvalidBackends, spec.ID)
			}
		default:
			return fmt.Errorf("%w: backend %q has unknown kind %q", ErrInvalidBackends, spec.ID, spec.Kind)
		}
		if spec.Model == "" {
			return fmt.Errorf("%w: backend %q has no model", ErrInvalidBackends, spec.ID)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
