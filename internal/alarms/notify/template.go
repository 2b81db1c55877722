package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Gas Alarm {{.EventLabel}}]
Gas: {{.Gas}}
Status: {{.Status}}
Measurements: {{.Measurements}}
Reference Threshold: {{.Threshold}}
Opened: {{.OpenedAt}}
Last Update: {{.UpdatedAt}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Gas          string
	GasID        string
	Status       string
	Measurements int
	Threshold    string
	OpenedAt     string
	UpdatedAt    string
	Event        string
	EventLabel   string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alarm-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alarm template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
