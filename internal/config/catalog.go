package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/settle/internal/domain"
)

//go:embed agents.yaml
var defaultCatalog []byte

// DefaultFinalEvaluationName names the final-evaluation step when the catalog
// does not configure one.
const DefaultFinalEvaluationName = "FinalEvaluationAgent"

// ModelSettings selects the model used for every agent call.
type ModelSettings struct {
	Name        string `yaml:"name"`
	Temperature string `yaml:"temperature"`
}

// WithOverrides returns s with non-empty name and temperature taking precedence.
func (s ModelSettings) WithOverrides(name, temperature string) ModelSettings {
	if name != "" {
		s.Name = name
	}
	if temperature != "" {
		s.Temperature = temperature
	}
	return s
}

// Catalog is the static description of every agent the pipeline can schedule.
type Catalog struct {
	Model           ModelSettings      `yaml:"model"`
	Orchestrator    domain.AgentSpec   `yaml:"orchestrator"`
	FinalEvaluation domain.AgentSpec   `yaml:"final_evaluation"`
	Agents          []domain.AgentSpec `yaml:"agents"`
}

// LoadCatalog reads the catalog at path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := cat.normalize(); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Catalog) normalize() error {
	c.Orchestrator.Name = strings.TrimSpace(c.Orchestrator.Name)
	if c.Orchestrator.Name == "" {
		return &domain.ConfigurationError{Message: "catalog has no orchestrator"}
	}
	c.Orchestrator.IsOrchestrator = true

	c.FinalEvaluation.Name = strings.TrimSpace(c.FinalEvaluation.Name)
	if c.FinalEvaluation.Name == "" {
		c.FinalEvaluation.Name = DefaultFinalEvaluationName
	}
	if c.FinalEvaluation.StageLabel == "" {
		c.FinalEvaluation.StageLabel = "Final Evaluation"
	}

	seen := map[string]bool{c.Orchestrator.Name: true}
	for i := range c.Agents {
		a := &c.Agents[i]
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			return &domain.ConfigurationError{Message: fmt.Sprintf("catalog agent #%d has no name", i+1)}
		}
		if seen[a.Name] {
			return &domain.ConfigurationError{Message: fmt.Sprintf("duplicate agent name %q in catalog", a.Name)}
		}
		seen[a.Name] = true
		if a.StageLabel == "" {
			a.StageLabel = a.Name
		}
	}
	return nil
}

// Lookup finds a non-orchestrator agent by exact name.
func (c *Catalog) Lookup(name string) (domain.AgentSpec, bool) {
	for _, a := range c.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return domain.AgentSpec{}, false
}

// Names lists the schedulable agent names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Agents))
	for _, a := range c.Agents {
		names = append(names, a.Name)
	}
	return names
}
