package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/pkg/models"
)

// modelled is implemented by backends that call a named model.
type modelled interface {
	Model() string
}

// NewRegistryFromConfig registers every backend that has credentials plus
// the local backend. With dryRun the local backend is the default;
// otherwise cfg.Agents.Default must have been registered.
func NewRegistryFromConfig(ctx context.Context, cfg *config.Config, dryRun bool, opts ...RegistryOption) (*Registry, error) {
	r := NewRegistry(opts...)

	if err := r.Register(models.AgentInfo{ID: LocalAgentID, Provider: LocalAgentID}, NewLocalInvoker(0)); err != nil {
		return nil, err
	}
	if dryRun {
		return r, nil
	}

	backends := []struct {
		id  string
		new func() (Invoker, error)
	}{
		{config.ProviderAnthropic, func() (Invoker, error) { return NewAnthropicInvoker(ctx, cfg) }},
		{config.ProviderOpenAI, func() (Invoker, error) { return NewOpenAIInvoker(cfg) }},
		{config.ProviderGemini, func() (Invoker, error) { return NewGeminiInvoker(ctx, cfg) }},
	}
	for _, b := range backends {
		inv, err := b.new()
		if errors.Is(err, config.ErrNoAPIKey) {
			r.logger.Debug("agent: backend skipped", zap.String("agent", b.id), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating %s backend: %w", b.id, err)
		}
		info := models.AgentInfo{ID: b.id, Provider: b.id}
		if m, ok := inv.(modelled); ok {
			info.Model = m.Model()
		}
		if err := r.Register(info, inv); err != nil {
			return nil, err
		}
	}

	def := cfg.Agents.Default
	if def == "" {
		def = config.ProviderAnthropic
	}
	if err := r.SetDefault(def); err != nil {
		return nil, fmt.Errorf("default agent unavailable (configure credentials or use a dry run): %w", err)
	}
	return r, nil
}
