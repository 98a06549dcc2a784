package domain

// Document is one extracted input file. Immutable once produced.
type Document struct {
	Filename         string `json:"filename"`
	MediaType        string `json:"media_type"`
	Text             string `json:"text"`
	ExtractionFailed bool   `json:"extraction_failed"`
}

// Preview returns at most n runes of the document text.
func (d Document) Preview(n int) string {
	return Truncate(d.Text, n)
}

// AgentSpec describes one configured agent. Loaded once from the catalog.
type AgentSpec struct {
	Name           string `json:"name" yaml:"name"`
	StageLabel     string `json:"stage" yaml:"stage"`
	IconRef        string `json:"icon,omitempty" yaml:"icon"`
	Description    string `json:"description" yaml:"description"`
	Role           string `json:"role" yaml:"role"`
	Task           string `json:"task" yaml:"task"`
	IsOrchestrator bool   `json:"is_orchestrator,omitempty" yaml:"-"`
}

// ExecutionPlan is the orchestrator's decision about which agents run and in what order.
type ExecutionPlan struct {
	Scenario        string   `json:"scenario"`
	Reasoning       string   `json:"reasoning"`
	AgentSequence   []string `json:"agent_sequence"`
	ExpectedOutcome string   `json:"expected_outcome"`
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n < 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
