package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/ShayCichocki/taskweave/internal/config"
)

// AnthropicInvoker calls Claude through the Messages API, either directly
// or through AWS Bedrock.
type AnthropicInvoker struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

var _ Invoker = (*AnthropicInvoker)(nil)

// NewAnthropicInvoker creates a Claude backend from configuration.
// The API key is resolved from the environment or config unless Bedrock is used.
func NewAnthropicInvoker(ctx context.Context, cfg *config.Config) (*AnthropicInvoker, error) {
	ac := cfg.Agents.Anthropic
	var opts []option.RequestOption

	if ac.UseBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if ac.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(ac.AWSRegion))
		}
		if ac.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(ac.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		key, err := config.GetAPIKey(cfg, config.ProviderAnthropic)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithAPIKey(key))
	}

	model := anthropic.Model(ac.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if ac.UseBedrock {
		model = bedrockModel(model)
	}

	maxTokens := int64(ac.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &AnthropicInvoker{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Model returns the model the invoker calls.
func (a *AnthropicInvoker) Model() string { return string(a.model) }

// bedrockModel converts a standard model name to its cross-region Bedrock
// inference profile. Unknown names pass through unchanged.
func bedrockModel(model anthropic.Model) anthropic.Model {
	if strings.HasPrefix(string(model), "us.anthropic.") {
		return model
	}
	profiles := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if p, ok := profiles[model]; ok {
		return anthropic.Model(p)
	}
	return model
}

// Invoke sends a single-turn request and concatenates the text blocks of the reply.
func (a *AnthropicInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	maxTokens := a.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	system := req.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	var resp *anthropic.Message
	if req.OnChunk != nil {
		msg, err := a.stream(ctx, params, req)
		if err != nil {
			return nil, err
		}
		resp = msg
	} else {
		msg, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("anthropic messages: %w", err)
		}
		resp = msg
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(text.Text)
		}
	}

	return &Response{
		AgentID:      req.AgentID,
		Output:       out.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// stream runs the request over server-sent events, forwarding text deltas
// and accumulating the final message.
func (a *AnthropicInvoker) stream(ctx context.Context, params anthropic.MessageNewParams, req Request) (*anthropic.Message, error) {
	stream := a.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var msg anthropic.Message
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, fmt.Errorf("anthropic stream: %w", err)
		}
		if ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
				req.chunk(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}
	return &msg, nil
}
