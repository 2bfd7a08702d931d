package models

// Unspecified is the value an extractor reports when nothing matched.
const Unspecified = "unspecified"

// UnassignedAgent is the agent ID used before an agent is chosen.
const UnassignedAgent = "unassigned"

// ContextMetadata captures stylistic and scoping cues found in the original prompt.
type ContextMetadata struct {
	Tone        string   `json:"tone"`
	Format      string   `json:"format"`
	StyleGuide  string   `json:"styleGuide"`
	Domain      string   `json:"domain"`
	Audience    string   `json:"audience"`
	Constraints []string `json:"constraints,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// ComplexityLevel buckets a task by how much work it involves.
type ComplexityLevel string

const (
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityModerate ComplexityLevel = "moderate"
	ComplexityComplex  ComplexityLevel = "complex"
	ComplexityExpert   ComplexityLevel = "expert"
)

// TaskComplexity is the result of analysing a subtask description.
type TaskComplexity struct {
	Level                ComplexityLevel `json:"level"`
	OperationCount       int             `json:"operationCount"`
	EstimatedDurationMs  int64           `json:"estimatedDuration"`
	RequiresExternalData bool            `json:"requiresExternalData"`
	HasIterativeSteps    bool            `json:"hasIterativeSteps"`
	RiskFactors          []string        `json:"riskFactors,omitempty"`
}

// InjectionMetadata records how much the contextual text was compressed.
type InjectionMetadata struct {
	OriginalLength   int     `json:"originalLength"`
	InjectedLength   int     `json:"injectedLength"`
	CompressionRatio float64 `json:"compressionRatio"`
}

// InjectedPrompt is the self-contained prompt handed to one agent.
type InjectedPrompt struct {
	SubtaskID            string            `json:"subtaskId"`
	AgentID              string            `json:"agentId"`
	IsolatedPrompt       string            `json:"isolatedPrompt"`
	Context              ContextMetadata   `json:"context"`
	RelevantContext      string            `json:"relevantContext"`
	TodoList             *SubtaskTodoList  `json:"todoList"`
	ProgressInstructions string            `json:"progressInstructions"`
	CheckpointMarkers    []string          `json:"checkpointMarkers"`
	Complexity           TaskComplexity    `json:"complexity"`
	Metadata             InjectionMetadata `json:"metadata"`
}

// WorkflowScaffold carries workflow-level facts the injector renders into
// every subtask prompt.
type WorkflowScaffold struct {
	WorkflowID    string `json:"workflowId"`
	Name          string `json:"name"`
	AgentID       string `json:"agentId,omitempty"`
	TotalSubtasks int    `json:"totalSubtasks"`
}
