package notifier

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds the parsed email layouts.
type Templates struct {
	html  *htmltemplate.Template
	plain *template.Template
}

// TemplateData is the data passed to the email layouts: the rule's render
// data plus the already-rendered subject and message.
type TemplateData struct {
	*alerting.RenderData
	Subject    string
	Message    string
	LevelColor string
	Test       bool
}

// LoadTemplates loads the embedded email layouts.
func LoadTemplates() (*Templates, error) {
	htmlTmpl, err := htmltemplate.New("alert.html").
		Funcs(htmltemplate.FuncMap{"upper": strings.ToUpper}).
		ParseFS(templateFS, "templates/alert.html")
	if err != nil {
		return nil, err
	}

	plainTmpl, err := template.New("alert.txt").
		Funcs(template.FuncMap{"upper": strings.ToUpper}).
		ParseFS(templateFS, "templates/alert.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// RenderHTML renders the HTML email body.
func (t *Templates) RenderHTML(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Compose renders rule for data and wraps the result in both layouts.
// Recipients are left for the caller to fill.
func (t *Templates) Compose(rule *alerting.Rule, data *alerting.RenderData) (*Message, error) {
	subject, message, err := rule.Render(data)
	if err != nil {
		return nil, err
	}

	td := &TemplateData{
		RenderData: data,
		Subject:    subject,
		Message:    strings.TrimSpace(message),
		LevelColor: levelColor(rule.Level),
	}
	return t.build(td, rule.Level)
}

// ComposeTest renders a synthetic alert with the test banner.
func (t *Templates) ComposeTest(rule *alerting.Rule, data *alerting.RenderData) (*Message, error) {
	subject, message, err := rule.Render(data)
	if err != nil {
		return nil, err
	}

	td := &TemplateData{
		RenderData: data,
		Subject:    "[TEST] " + subject,
		Message:    strings.TrimSpace(message),
		LevelColor: levelColor(rule.Level),
		Test:       true,
	}
	msg, err := t.build(td, rule.Level)
	if err != nil {
		return nil, err
	}
	msg.Test = true
	return msg, nil
}

func (t *Templates) build(td *TemplateData, level models.Level) (*Message, error) {
	html, err := t.RenderHTML(td)
	if err != nil {
		return nil, err
	}
	plain, err := t.RenderPlain(td)
	if err != nil {
		return nil, err
	}

	return &Message{
		Subject:      td.Subject,
		TextBody:     plain,
		HTMLBody:     html,
		Level:        level,
		EntityID:     td.EntityID,
		DayThreshold: td.DayThreshold,
		AgeDays:      td.AgeDays,
	}, nil
}

// levelColor returns the banner color for a level.
func levelColor(level models.Level) string {
	switch level {
	case models.LevelCritical:
		return "#d32f2f" // red
	case models.LevelUrgent:
		return "#f57c00" // orange
	case models.LevelWarning:
		return "#fbc02d" // yellow
	case models.LevelInfo:
		return "#1976d2" // blue
	default:
		return "#757575" // gray
	}
}
