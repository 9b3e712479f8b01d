// Package scenario describes scripted page sessions in YAML and replays them
// against an in-process document with a running tracking controller.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/autotrack/internal/validation"
)

// Scenario is one scripted session.
type Scenario struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url,omitempty"`
	// Page is a path to the HTML page, relative to the scenario file.
	Page string `yaml:"page,omitempty"`
	// HTML is an inline page used when Page is empty.
	HTML  string `yaml:"html,omitempty"`
	Steps []Step `yaml:"steps"`

	dir string
}

// Step is one user or renderer action. Exactly one field is set.
type Step struct {
	Click    string     `yaml:"click,omitempty"`
	Blur     string     `yaml:"blur,omitempty"`
	Remove   string     `yaml:"remove,omitempty"`
	Navigate string     `yaml:"navigate,omitempty"`
	Set      *SetStep   `yaml:"set,omitempty"`
	Append   *HTMLStep  `yaml:"append,omitempty"`
	Replace  *HTMLStep  `yaml:"replace,omitempty"`
	Input    *InputStep `yaml:"input,omitempty"`
}

// SetStep writes or removes an attribute.
type SetStep struct {
	Selector  string `yaml:"selector"`
	Attribute string `yaml:"attribute"`
	Value     string `yaml:"value"`
	// Delete removes the attribute instead.
	Delete bool `yaml:"delete,omitempty"`
}

// HTMLStep inserts markup into the first element matching Selector.
type HTMLStep struct {
	Selector string `yaml:"selector"`
	HTML     string `yaml:"html"`
}

// InputStep types a value into an input.
type InputStep struct {
	Selector string `yaml:"selector"`
	Value    string `yaml:"value"`
}

// Kind names the action of a step.
func (s Step) Kind() string {
	switch {
	case s.Click != "":
		return "click"
	case s.Blur != "":
		return "blur"
	case s.Remove != "":
		return "remove"
	case s.Navigate != "":
		return "navigate"
	case s.Set != nil:
		return "set"
	case s.Append != nil:
		return "append"
	case s.Replace != nil:
		return "replace"
	case s.Input != nil:
		return "input"
	default:
		return ""
	}
}

// Validate checks that every step names exactly one action.
func (s *Scenario) Validate() error {
	if s.Page == "" && s.HTML == "" {
		return fmt.Errorf("scenario %q has neither page nor html", s.Name)
	}
	if s.URL != "" {
		if err := validation.ValidateURL(s.URL); err != nil {
			return fmt.Errorf("scenario %q: %w", s.Name, err)
		}
	}
	for i, step := range s.Steps {
		set := 0
		for _, present := range []bool{
			step.Click != "", step.Blur != "", step.Remove != "", step.Navigate != "",
			step.Set != nil, step.Append != nil, step.Replace != nil, step.Input != nil,
		} {
			if present {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("scenario %q step %d must have exactly one action, has %d", s.Name, i+1, set)
		}
	}
	return nil
}

// Parse decodes a scenario. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	if s.Name == "" {
		s.Name = filepath.Base(path)
	}
	return s, nil
}

// Markup returns the page markup of the scenario.
func (s *Scenario) Markup() (string, error) {
	if s.Page == "" {
		return s.HTML, nil
	}
	path := s.Page
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
