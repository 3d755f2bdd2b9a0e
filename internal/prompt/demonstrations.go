package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Demonstration is one few-shot exemplar. Each store file uses the subset of
// fields its task family needs.
type Demonstration struct {
	Context    string   `json:"context,omitempty"`
	Prompt     string   `json:"prompt,omitempty"`
	Advice     string   `json:"advice"`
	NewContext []string `json:"new_context,omitempty"`
	NewAdvice  []string `json:"new_advice,omitempty"`
	Paraphrase []string `json:"paraphrase,omitempty"`
	Benefits   []string `json:"benefits,omitempty"`
	Hint       string   `json:"hint,omitempty"`
	Rationale  string   `json:"rationale,omitempty"`
}

// Source supplies the exemplars of a demonstration file.
type Source interface {
	Load(file string) ([]Demonstration, error)
}

// FileSource reads <Dir>/<file>.json.
type FileSource struct {
	Dir string
}

func (s FileSource) Load(file string) ([]Demonstration, error) {
	path := filepath.Join(s.Dir, file+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read demonstrations: %w", err)
	}
	var out []Demonstration
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse demonstrations %s: %w", path, err)
	}
	return out, nil
}
