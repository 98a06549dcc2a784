package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Reserved keys written alongside model-supplied fields when a result is serialized.
const (
	FieldAgent = "agent"
	FieldStage = "stage"
	FieldKind  = "kind"
)

// Keys every domain result carries, empty when the model did not supply them.
const (
	FieldSummary         = "summary"
	FieldFindings        = "findings"
	FieldRecommendations = "recommendations"
	FieldConcerns        = "concerns"
)

// AgentResult is the durable output of a completed agent run. Kind tags which
// shape Fields holds; Fields keeps every key the model supplied.
type AgentResult struct {
	Kind       ResultKind
	AgentName  string
	StageLabel string
	Fields     map[string]any
}

// NewDomainResult merges fields over the empty domain defaults.
func NewDomainResult(spec AgentSpec, kind ResultKind, fields map[string]any) AgentResult {
	merged := map[string]any{
		FieldSummary:         "",
		FieldFindings:        "",
		FieldRecommendations: "",
		FieldConcerns:        "",
	}
	for k, v := range fields {
		merged[k] = v
	}
	return AgentResult{
		Kind:       kind,
		AgentName:  spec.Name,
		StageLabel: spec.StageLabel,
		Fields:     merged,
	}
}

// NewRawTextResult wraps text that did not parse as a JSON object.
func NewRawTextResult(spec AgentSpec, text string) AgentResult {
	return NewDomainResult(spec, ResultKindRawText, map[string]any{FieldSummary: text})
}

// Text returns the value of key rendered as text. Strings are returned as is,
// other values as JSON, absent or null keys as "".
func (r AgentResult) Text(key string) string {
	return textOf(r.Fields[key])
}

// Summary is shorthand for Text(FieldSummary).
func (r AgentResult) Summary() string {
	return r.Text(FieldSummary)
}

// MarshalJSON flattens the result into {agent, stage, kind, ...fields}.
func (r AgentResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	out[FieldAgent] = r.AgentName
	out[FieldStage] = r.StageLabel
	out[FieldKind] = r.Kind
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON.
func (r *AgentResult) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.AgentName = textOf(raw[FieldAgent])
	r.StageLabel = textOf(raw[FieldStage])
	r.Kind = ResultKind(textOf(raw[FieldKind]))
	delete(raw, FieldAgent)
	delete(raw, FieldStage)
	delete(raw, FieldKind)
	r.Fields = raw
	return nil
}

// Evaluation is the typed view of a final-evaluation result.
type Evaluation struct {
	Verdict         string   `json:"verdict"`
	ConfidenceScore float64  `json:"confidenceScore"`
	Reasoning       string   `json:"reasoning"`
	KeyFactors      []string `json:"keyFactors"`
	RiskLevel       string   `json:"riskLevel"`
	CriticalIssues  []string `json:"criticalIssues"`
	Recommendations []string `json:"recommendations"`
}

// Evaluation reads the final-evaluation fields leniently. A raw-text result
// yields an empty verdict with the text as reasoning.
func (r AgentResult) Evaluation() Evaluation {
	if r.Kind == ResultKindRawText {
		return Evaluation{Reasoning: r.Summary()}
	}
	return Evaluation{
		Verdict:         strings.ToUpper(strings.TrimSpace(r.Text("verdict"))),
		ConfidenceScore: numberOf(r.Fields["confidenceScore"]),
		Reasoning:       r.Text("reasoning"),
		KeyFactors:      listOf(r.Fields["keyFactors"]),
		RiskLevel:       r.Text("riskLevel"),
		CriticalIssues:  listOf(r.Fields["criticalIssues"]),
		Recommendations: listOf(r.Fields[FieldRecommendations]),
	}
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func numberOf(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func listOf(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := textOf(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	default:
		if s := textOf(t); s != "" {
			return []string{s}
		}
	}
	return nil
}
