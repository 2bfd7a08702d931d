// Package agent provides the backends that execute isolated subtask prompts.
package agent

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

var (
	// ErrUnknownAgent is returned when a request names an agent that is not registered.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrEmptyPrompt is returned when a request carries no prompt text.
	ErrEmptyPrompt = errors.New("empty prompt")
)

// Invoker sends one prompt to an agent backend and returns its text output.
// Implementations must be safe for concurrent use and must honour ctx.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// Request is a single prompt for one subtask.
type Request struct {
	SubtaskID    string
	AgentID      string
	Prompt       string
	SystemPrompt string
	// MaxTokens overrides the backend's configured output limit when positive.
	MaxTokens int
	// OnChunk, when set, switches the backend to its streaming API and
	// receives output text as it arrives. It is called from the goroutine
	// running Invoke.
	OnChunk func(text string)
}

// Response is the text an agent produced and its token usage.
type Response struct {
	AgentID      string
	Output       string
	InputTokens  int64
	OutputTokens int64
}

// TokensUsed returns input plus output tokens.
func (r *Response) TokensUsed() int64 {
	if r == nil {
		return 0
	}
	return r.InputTokens + r.OutputTokens
}

// DefaultSystemPrompt frames every subtask call.
const DefaultSystemPrompt = `You are one agent in a multi-agent workflow. You receive a single isolated subtask.
Complete only that subtask, follow the TODO CHECKLIST in order, and emit the progress markers exactly as instructed.`

// Classify maps a backend error onto the dispatch error taxonomy.
// Deadlines are TIMEOUT_ERROR; client errors other than 408 and 429 are
// VALIDATION_ERROR; every other remote failure is API_ERROR.
func Classify(err error) models.ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrorKindTimeout
	case errors.Is(err, ErrUnknownAgent), errors.Is(err, ErrEmptyPrompt):
		return models.ErrorKindValidation
	case errors.Is(err, context.Canceled):
		return models.ErrorKindSystem
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return kindForStatus(anthropicErr.StatusCode)
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return kindForStatus(openaiErr.StatusCode)
	}
	var withStatus interface{ HTTPStatus() int }
	if errors.As(err, &withStatus) {
		return kindForStatus(withStatus.HTTPStatus())
	}
	return models.ErrorKindAPI
}

func kindForStatus(code int) models.ErrorKind {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return models.ErrorKindTimeout
	case code == http.StatusTooManyRequests:
		return models.ErrorKindAPI
	case code >= 400 && code < 500:
		return models.ErrorKindValidation
	default:
		return models.ErrorKindAPI
	}
}
