// Package prompts holds the declarative stage templates. Each stage of each
// workflow is one Template; the pipeline executor renders it and sends the
// resulting llm.Prompt to the model.
package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/llm"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
)

//go:embed templates.yaml
var templatesYAML []byte

var ErrUnknownTemplate = errors.New("unknown template")

// Data is what templates may reference.
type Data struct {
	Question     string
	Profile      string
	Site         string
	DatasetRange string
	Metrics      string
	GroupBys     string
}

type rawTemplate struct {
	Role           string `yaml:"role"`
	Goal           string `yaml:"goal"`
	Backstory      string `yaml:"backstory"`
	Task           string `yaml:"task"`
	ExpectedOutput string `yaml:"expected_output"`
}

type Template struct {
	Workflow models.WorkflowName
	Stage    models.StageKind
	Role     string

	goal      *template.Template
	backstory *template.Template
	task      *template.Template
	expected  *template.Template
}

type Library struct {
	templates map[models.WorkflowName]map[models.StageKind]*Template
}

// Load parses the embedded templates.
func Load() (*Library, error) {
	return Parse(templatesYAML)
}

func Parse(src []byte) (*Library, error) {
	var raw map[models.WorkflowName]map[models.StageKind]rawTemplate
	if err := yaml.Unmarshal(src, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	lib := &Library{templates: make(map[models.WorkflowName]map[models.StageKind]*Template)}
	for wf, stages := range raw {
		lib.templates[wf] = make(map[models.StageKind]*Template)
		for kind, rt := range stages {
			if !kind.Valid() {
				return nil, fmt.Errorf("%s: unknown stage kind %q", wf, kind)
			}
			if rt.Role == "" || rt.Task == "" {
				return nil, fmt.Errorf("%s/%s: role and task are required", wf, kind)
			}
			t, err := compile(wf, kind, rt)
			if err != nil {
				return nil, err
			}
			lib.templates[wf][kind] = t
		}
	}
	return lib, nil
}

func compile(wf models.WorkflowName, kind models.StageKind, rt rawTemplate) (*Template, error) {
	name := fmt.Sprintf("%s/%s", wf, kind)
	parse := func(field, text string) (*template.Template, error) {
		t, err := template.New(name + "/" + field).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s %s: %w", name, field, err)
		}
		return t, nil
	}

	t := &Template{Workflow: wf, Stage: kind, Role: rt.Role}
	var err error
	if t.goal, err = parse("goal", rt.Goal); err != nil {
		return nil, err
	}
	if t.backstory, err = parse("backstory", rt.Backstory); err != nil {
		return nil, err
	}
	if t.task, err = parse("task", rt.Task); err != nil {
		return nil, err
	}
	if t.expected, err = parse("expected_output", rt.ExpectedOutput); err != nil {
		return nil, err
	}
	return t, nil
}

func (l *Library) Template(wf models.WorkflowName, kind models.StageKind) (*Template, error) {
	t, ok := l.templates[wf][kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownTemplate, wf, kind)
	}
	return t, nil
}

// Render fills the template and attaches upstream stage outputs as context.
func (t *Template) Render(data Data, context string) (llm.Prompt, error) {
	exec := func(tmpl *template.Template) (string, error) {
		var b strings.Builder
		if err := tmpl.Execute(&b, data); err != nil {
			return "", fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
		}
		return strings.TrimSpace(b.String()), nil
	}

	p := llm.Prompt{Role: t.Role, Context: context}
	var err error
	if p.Goal, err = exec(t.goal); err != nil {
		return llm.Prompt{}, err
	}
	if p.Backstory, err = exec(t.backstory); err != nil {
		return llm.Prompt{}, err
	}
	if p.Task, err = exec(t.task); err != nil {
		return llm.Prompt{}, err
	}
	if p.ExpectedOutput, err = exec(t.expected); err != nil {
		return llm.Prompt{}, err
	}
	return p, nil
}
