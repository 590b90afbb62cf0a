package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"path"
	"strconv"
	"strings"
	texttemplate "text/template"

	"github.com/xavierca1/leaddrip/internal/usecase"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// FallbackTemplate renders steps whose template id has no file of its own.
const FallbackTemplate = "generic"

var funcs = map[string]any{
	"money": money,
	"pct":   pct,
}

type emailTemplate struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

// TemplateRegistry holds the parsed campaign templates keyed by template id.
type TemplateRegistry struct {
	templates map[string]emailTemplate
}

func NewTemplateRegistry() (*TemplateRegistry, error) {
	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	r := &TemplateRegistry{templates: make(map[string]emailTemplate)}
	for _, f := range files {
		id := strings.TrimSuffix(path.Base(f), ".html")
		if id == "layout" {
			continue
		}

		html, err := htmltemplate.New(id).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", f)
		if err != nil {
			return nil, fmt.Errorf("parse %s html: %w", id, err)
		}
		text, err := texttemplate.New(id).Funcs(funcs).ParseFS(templateFS, "templates/layout.txt", "templates/"+id+".txt")
		if err != nil {
			return nil, fmt.Errorf("parse %s text: %w", id, err)
		}
		r.templates[id] = emailTemplate{html: html, text: text}
	}

	if _, ok := r.templates[FallbackTemplate]; !ok {
		return nil, fmt.Errorf("fallback template %q missing", FallbackTemplate)
	}
	return r, nil
}

// Has reports whether templateID has its own template.
func (r *TemplateRegistry) Has(templateID string) bool {
	_, ok := r.templates[templateID]
	return ok
}

func (r *TemplateRegistry) Render(_ context.Context, templateID string, data usecase.TemplateData) (*usecase.RenderedEmail, error) {
	if data.Lead == nil {
		return nil, fmt.Errorf("render %s: lead is required", templateID)
	}

	t, ok := r.templates[templateID]
	if !ok {
		t = r.templates[FallbackTemplate]
	}

	var subject, text, html bytes.Buffer
	if err := t.text.ExecuteTemplate(&subject, "subject", data); err != nil {
		return nil, err
	}
	if err := t.text.ExecuteTemplate(&text, "layout", data); err != nil {
		return nil, err
	}
	if err := t.html.ExecuteTemplate(&html, "layout", data); err != nil {
		return nil, err
	}

	return &usecase.RenderedEmail{
		Subject: strings.TrimSpace(subject.String()),
		HTML:    html.String(),
		Text:    strings.TrimSpace(text.String()) + "\n",
	}, nil
}

// money formats whole dollars with thousands separators: 425000 -> $425,000.
func money(v any) string {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	case float64:
		n = int64(x)
	default:
		return fmt.Sprint(v)
	}

	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return sign + "$" + b.String()
}

func pct(v float64) string {
	return fmt.Sprintf("%+.1f%%", v)
}
