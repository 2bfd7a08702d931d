package agent

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ShayCichocki/taskweave/internal/config"
)

// GeminiInvoker calls Google's Gemini models through the GenAI SDK.
type GeminiInvoker struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

var _ Invoker = (*GeminiInvoker)(nil)

// NewGeminiInvoker creates a Gemini backend from configuration.
func NewGeminiInvoker(ctx context.Context, cfg *config.Config) (*GeminiInvoker, error) {
	gc := cfg.Agents.Gemini
	key, err := config.GetAPIKey(cfg, config.ProviderGemini)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	model := gc.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	maxTokens := int32(gc.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &GeminiInvoker{client: client, model: model, maxTokens: maxTokens}, nil
}

// Model returns the model the invoker calls.
func (g *GeminiInvoker) Model() string { return g.model }

// Invoke generates content for a single user turn.
func (g *GeminiInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	maxTokens := g.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}
	system := req.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}

	gcfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		MaxOutputTokens:   maxTokens,
	}
	if req.OnChunk != nil {
		return g.stream(ctx, gcfg, req)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), gcfg)
	if err != nil {
		return nil, fmt.Errorf("genai generate: %w", err)
	}

	out := &Response{AgentID: req.AgentID, Output: resp.Text()}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int64(u.PromptTokenCount)
		out.OutputTokens = int64(u.CandidatesTokenCount)
	}
	return out, nil
}

// stream concatenates the streamed candidates. Usage arrives on the last chunk.
func (g *GeminiInvoker) stream(ctx context.Context, gcfg *genai.GenerateContentConfig, req Request) (*Response, error) {
	var text strings.Builder
	out := &Response{AgentID: req.AgentID}
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(req.Prompt), gcfg) {
		if err != nil {
			return nil, fmt.Errorf("genai stream: %w", err)
		}
		delta := resp.Text()
		text.WriteString(delta)
		req.chunk(delta)
		if u := resp.UsageMetadata; u != nil {
			out.InputTokens = int64(u.PromptTokenCount)
			out.OutputTokens = int64(u.CandidatesTokenCount)
		}
	}
	out.Output = text.String()
	return out, nil
}
