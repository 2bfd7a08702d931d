package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/ShayCichocki/taskweave/internal/config"
)

// OpenAIInvoker calls the OpenAI Responses API.
type OpenAIInvoker struct {
	client    *openai.Client
	model     string
	maxTokens int64
}

var _ Invoker = (*OpenAIInvoker)(nil)

// NewOpenAIInvoker creates an OpenAI backend from configuration.
func NewOpenAIInvoker(cfg *config.Config) (*OpenAIInvoker, error) {
	oc := cfg.Agents.OpenAI
	key, err := config.GetAPIKey(cfg, config.ProviderOpenAI)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if oc.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(oc.BaseURL))
	}
	client := openai.NewClient(opts...)

	model := oc.Model
	if model == "" {
		model = "gpt-4.1-mini"
	}
	maxTokens := int64(oc.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &OpenAIInvoker{client: &client, model: model, maxTokens: maxTokens}, nil
}

// Model returns the model the invoker calls.
func (o *OpenAIInvoker) Model() string { return o.model }

// Invoke sends the system and user prompt as one input list.
func (o *OpenAIInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	maxTokens := o.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	system := req.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}

	input := responses.ResponseInputParam{
		responses.ResponseInputItemParamOfMessage(system, responses.EasyInputMessageRoleSystem),
		responses.ResponseInputItemParamOfMessage(req.Prompt, responses.EasyInputMessageRoleUser),
	}

	params := responses.ResponseNewParams{
		Model:           shared.ResponsesModel(o.model),
		Input:           responses.ResponseNewParamsInputUnion{OfInputItemList: input},
		MaxOutputTokens: openai.Int(maxTokens),
	}
	if req.OnChunk != nil {
		return o.stream(ctx, params, req)
	}

	result, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses: %w", err)
	}

	return &Response{
		AgentID:      req.AgentID,
		Output:       result.OutputText(),
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
	}, nil
}

// stream forwards output_text deltas and takes the output and usage from
// the completed response when the server sends one.
func (o *OpenAIInvoker) stream(ctx context.Context, params responses.ResponseNewParams, req Request) (*Response, error) {
	stream := o.client.Responses.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		text      strings.Builder
		completed *responses.Response
	)
	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case responses.ResponseTextDeltaEvent:
			text.WriteString(ev.Delta)
			req.chunk(ev.Delta)
		case responses.ResponseCompletedEvent:
			completed = &ev.Response
		case responses.ResponseFailedEvent:
			return nil, fmt.Errorf("openai stream: response failed: %s", ev.Response.Error.Message)
		case responses.ResponseErrorEvent:
			return nil, fmt.Errorf("openai stream: %s", ev.Message)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}

	resp := &Response{AgentID: req.AgentID, Output: text.String()}
	if completed != nil {
		if out := completed.OutputText(); out != "" {
			resp.Output = out
		}
		resp.InputTokens = completed.Usage.InputTokens
		resp.OutputTokens = completed.Usage.OutputTokens
	}
	return resp, nil
}
