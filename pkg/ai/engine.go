package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/coreai-dashboard/pkg/config"
)

var (
	ErrAIDisabled = errors.New("no AI provider configured")
	// ErrAIUnavailable accompanies template text returned after a failed provider call.
	ErrAIUnavailable = errors.New("AI provider unavailable")
)

// Engine wraps a hosted or local language model (Claude / OpenAI / Gemini / Ollama)
// behind plain text prompts.
type Engine struct {
	client *http.Client

	provider   string // "anthropic", "openai", "gemini", "ollama"
	apiKey     string
	model      string
	apiBaseURL string
	maxTokens  int
}

// provider describes one chat completion API: where it lives, how a prompt is
// wrapped and where the text sits in the reply.
type provider struct {
	model   string // default when AI_MODEL is unset
	key     func(cfg *config.Config) string
	url     func(cfg *config.Config, model string) string
	headers func(key string) map[string]string
	body    func(model, prompt string, maxTokens int) any
	text    func(raw []byte) (string, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func userTurn(prompt string) []chatMessage {
	return []chatMessage{{Role: "user", Content: prompt}}
}

var providers = map[string]provider{
	"anthropic": {
		model: "claude-sonnet-4-20250514",
		key:   func(cfg *config.Config) string { return cfg.AnthropicAPIKey },
		url:   func(*config.Config, string) string { return "https://api.anthropic.com/v1/messages" },
		headers: func(key string) map[string]string {
			return map[string]string{"x-api-key": key, "anthropic-version": "2023-06-01"}
		},
		body: func(model, prompt string, maxTokens int) any {
			return map[string]any{"model": model, "max_tokens": maxTokens, "messages": userTurn(prompt)}
		},
		text: func(raw []byte) (string, error) {
			var r struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			}
			if err := json.Unmarshal(raw, &r); err != nil || len(r.Content) == 0 {
				return "", err
			}
			return r.Content[0].Text, nil
		},
	},
	"openai": {
		model: "gpt-4o",
		key:   func(cfg *config.Config) string { return cfg.OpenAIAPIKey },
		url:   func(*config.Config, string) string { return "https://api.openai.com/v1/chat/completions" },
		headers: func(key string) map[string]string {
			return map[string]string{"Authorization": "Bearer " + key}
		},
		body: func(model, prompt string, maxTokens int) any {
			return map[string]any{"model": model, "max_tokens": maxTokens, "messages": userTurn(prompt)}
		},
		text: func(raw []byte) (string, error) {
			var r struct {
				Choices []struct {
					Message chatMessage `json:"message"`
				} `json:"choices"`
			}
			if err := json.Unmarshal(raw, &r); err != nil || len(r.Choices) == 0 {
				return "", err
			}
			return r.Choices[0].Message.Content, nil
		},
	},
	"gemini": {
		model: "gemini-2.0-flash",
		key:   func(cfg *config.Config) string { return cfg.GeminiAPIKey },
		url: func(_ *config.Config, model string) string {
			return "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent"
		},
		headers: func(key string) map[string]string {
			return map[string]string{"x-goog-api-key": key}
		},
		body: func(_, prompt string, maxTokens int) any {
			return map[string]any{
				"contents":         []map[string]any{{"parts": []map[string]string{{"text": prompt}}}},
				"generationConfig": map[string]any{"maxOutputTokens": maxTokens},
			}
		},
		text: func(raw []byte) (string, error) {
			var r struct {
				Candidates []struct {
					Content struct {
						Parts []struct {
							Text string `json:"text"`
						} `json:"parts"`
					} `json:"content"`
				} `json:"candidates"`
			}
			if err := json.Unmarshal(raw, &r); err != nil || len(r.Candidates) == 0 {
				return "", err
			}
			var sb strings.Builder
			for _, p := range r.Candidates[0].Content.Parts {
				sb.WriteString(p.Text)
			}
			return sb.String(), nil
		},
	},
	"ollama": {
		model: "llama3.1",
		key:   func(*config.Config) string { return "" },
		url: func(cfg *config.Config, _ string) string {
			return strings.TrimRight(cfg.OllamaURL, "/") + "/api/chat"
		},
		headers: func(string) map[string]string { return nil },
		body: func(model, prompt string, _ int) any {
			return map[string]any{"model": model, "stream": false, "messages": userTurn(prompt)}
		},
		text: func(raw []byte) (string, error) {
			var r struct {
				Message chatMessage `json:"message"`
			}
			err := json.Unmarshal(raw, &r)
			return r.Message.Content, err
		},
	},
}

// detectProvider picks the first provider whose credentials are present.
func detectProvider(cfg *config.Config) string {
	switch {
	case cfg.AnthropicAPIKey != "":
		return "anthropic"
	case cfg.OpenAIAPIKey != "":
		return "openai"
	case cfg.GeminiAPIKey != "":
		return "gemini"
	case cfg.OllamaURL != "":
		return "ollama"
	}
	return ""
}

func NewEngine(cfg *config.Config) *Engine {
	e := &Engine{
		client:    &http.Client{Timeout: cfg.AITimeout},
		maxTokens: cfg.AIMaxTokens,
	}

	name := cfg.AIProvider
	if name == "" {
		name = detectProvider(cfg)
	}
	if p, ok := providers[name]; ok {
		e.apiKey = p.key(cfg)
		e.model = modelOr(cfg.AIModel, p.model)
		e.apiBaseURL = p.url(cfg, e.model)

		switch {
		case name == "ollama" && cfg.OllamaURL == "":
			log.Warn().Msg("⚠️ AI_PROVIDER=ollama but OLLAMA_URL is empty")
		case name != "ollama" && e.apiKey == "":
			log.Warn().Str("provider", name).Msg("⚠️ AI provider selected but no API key set")
		default:
			e.provider = name
		}
	}

	if e.provider != "" {
		log.Info().Str("provider", e.provider).Str("model", e.model).Msg("🤖 AI engine initialized")
	} else {
		log.Warn().Msg("⚠️ No AI provider configured - using rule-based insights")
	}
	return e
}

func (e *Engine) IsEnabled() bool {
	return e.provider != ""
}

func (e *Engine) Provider() string {
	return e.provider
}

// callLLM sends a single-turn prompt to the configured provider.
func (e *Engine) callLLM(ctx context.Context, prompt string) (string, error) {
	p, ok := providers[e.provider]
	if !ok {
		return "", ErrAIDisabled
	}
	raw, err := e.post(ctx, e.apiBaseURL, p.body(e.model, prompt, e.maxTokens), p.headers(e.apiKey))
	if err != nil {
		return "", fmt.Errorf("%s: %w", e.provider, err)
	}
	text, err := p.text(raw)
	if err != nil {
		return "", fmt.Errorf("%s: decode response: %w", e.provider, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: empty response", e.provider)
	}
	return text, nil
}

func (e *Engine) post(ctx context.Context, url string, payload any, headers map[string]string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}
	return raw, nil
}

// ---- helpers ----

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func abbrev(a string) string {
	if len(a) > 12 {
		return a[:8] + "..." + a[len(a)-4:]
	}
	return a
}

func modelOr(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}
