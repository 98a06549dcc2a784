// Package prompt renders named prompt templates with {{key}} placeholders.
package prompt

import (
	"fmt"
	"io/fs"
	"regexp"
	"sync"

	"github.com/goccy/go-json"
)

// Template names used by the pipeline.
const (
	TemplateOrchestrator    = "orchestrator"
	TemplateAgent           = "agent"
	TemplateFinalEvaluation = "final_evaluation"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// TemplateLoadError is returned when a template cannot be read.
type TemplateLoadError struct {
	Name string
	Err  error
}

func (e *TemplateLoadError) Error() string {
	return fmt.Sprintf("failed to load prompt template %q: %v", e.Name, e.Err)
}

func (e *TemplateLoadError) Unwrap() error {
	return e.Err
}

// Renderer loads templates from an fs.FS as "<name>.md" and caches them after
// the first successful load. It is safe for concurrent use.
type Renderer struct {
	fsys fs.FS

	mu    sync.RWMutex
	cache map[string]string
}

// NewRenderer creates a renderer over fsys.
func NewRenderer(fsys fs.FS) *Renderer {
	return &Renderer{
		fsys:  fsys,
		cache: make(map[string]string),
	}
}

// Render loads the named template and substitutes every {{key}} with vars[key].
// Placeholders whose key is absent from vars are left as they are.
func (r *Renderer) Render(name string, vars map[string]any) (string, error) {
	text, err := r.load(name)
	if err != nil {
		return "", err
	}
	return Substitute(text, vars), nil
}

func (r *Renderer) load(name string) (string, error) {
	r.mu.RLock()
	text, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return text, nil
	}

	if r.fsys == nil {
		return "", &TemplateLoadError{Name: name, Err: fs.ErrNotExist}
	}
	data, err := fs.ReadFile(r.fsys, name+".md")
	if err != nil {
		return "", &TemplateLoadError{Name: name, Err: err}
	}

	r.mu.Lock()
	r.cache[name] = string(data)
	r.mu.Unlock()
	return string(data), nil
}

// Substitute replaces placeholders in text. Objects and arrays are written as
// indented JSON with sorted keys.
func Substitute(text string, vars map[string]any) string {
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := vars[key]
		if !ok {
			return m
		}
		return toText(v)
	})
}

func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
