package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Divyansh-Kumawat/ocean-ai/internal/settings"
)

// Generator produces structured text from a prompt. The API key and model
// come from runtime settings, so key rotation needs no restart.
type Generator struct {
	settingsSvc   *settings.Service
	fallbackModel string
	client        *genai.Client
	currentKey    string
	mu            sync.RWMutex
	clientOpts    []option.ClientOption
}

func NewGenerator(svc *settings.Service, fallbackModel string, opts ...option.ClientOption) *Generator {
	return &Generator{
		settingsSvc:   svc,
		fallbackModel: fallbackModel,
		clientOpts:    opts,
	}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	s, err := g.settingsSvc.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get settings: %w", err)
	}

	if s.GeminiAPIKey == "" {
		return "", fmt.Errorf("gemini api key not configured")
	}

	client, err := g.getClient(ctx, s.GeminiAPIKey)
	if err != nil {
		return "", err
	}

	modelName := s.GenerationModel
	if modelName == "" {
		modelName = g.fallbackModel
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"

	res, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}

	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty generation response")
	}

	var out string
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	if out == "" {
		return "", fmt.Errorf("no text parts in generation response")
	}
	return out, nil
}

func (g *Generator) getClient(ctx context.Context, key string) (*genai.Client, error) {
	g.mu.RLock()
	if g.client != nil && g.currentKey == key {
		defer g.mu.RUnlock()
		return g.client, nil
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double check
	if g.client != nil && g.currentKey == key {
		return g.client, nil
	}

	if g.client != nil {
		if err := g.client.Close(); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}

	opts := append(g.clientOpts, option.WithAPIKey(key))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	g.client = client
	g.currentKey = key
	return client, nil
}
