package models

import "time"

// AgentStatus represents the availability of an agent backend.
type AgentStatus string

const (
	// AgentStatusAvailable indicates the agent accepts work.
	AgentStatusAvailable AgentStatus = "available"
	// AgentStatusUnhealthy indicates recent calls failed and the agent is
	// skipped for fallback.
	AgentStatusUnhealthy AgentStatus = "unhealthy"
	// AgentStatusDisabled indicates the agent was turned off by configuration.
	AgentStatusDisabled AgentStatus = "disabled"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusAvailable, AgentStatusUnhealthy, AgentStatusDisabled:
		return true
	default:
		return false
	}
}

// AgentInfo describes a registered agent backend.
type AgentInfo struct {
	// ID is the registry name, e.g. "anthropic".
	ID string `json:"id"`
	// Provider names the backend family.
	Provider string `json:"provider"`
	// Model is the model the backend calls.
	Model string `json:"model,omitempty"`
	// Status is the current availability.
	Status AgentStatus `json:"status"`
	// ConsecutiveFailures counts failures since the last success.
	ConsecutiveFailures int `json:"consecutiveFailures"`
	// LastError is the most recent failure message.
	LastError string `json:"lastError,omitempty"`
	// LastUsed is when the agent last served a request.
	LastUsed *time.Time `json:"lastUsed,omitempty"`
	// TokensUsed is the running token total for this agent.
	TokensUsed int64 `json:"tokensUsed"`
}
