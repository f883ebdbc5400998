package generator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"speculum/internal/definitions"
	"speculum/internal/services"
	"speculum/internal/textutil"
)

const defaultTemplate = `# {{ .Title }}

_Issue #{{ .Issue.Number }}: {{ .Issue.Title }}_
_Workflow: {{ .WorkflowName }} · Plan {{ .PlanID }} · Stage {{ .Stage }}_
{{ if .Description }}
{{ .Description }}
{{ end }}
{{- range .Sections }}
## {{ . }}

_Pending analysis._
{{ end }}
{{- if .Issue.Body }}
## Source

{{ .Issue.Body }}
{{ end -}}
`

// view is the data handed to templates.
type view struct {
	Title        string
	Description  string
	Sections     []string
	WorkflowName string
	Category     string
	PlanID       string
	Stage        int
	Generated    string
	Issue        issueView
}

type issueView struct {
	Number int
	Title  string
	Body   string
	URL    string
	Labels []string
}

// TemplateGenerator renders deliverables from text/template files.
type TemplateGenerator struct {
	dir   string
	mu    sync.Mutex
	cache map[string]*template.Template
}

// NewTemplateGenerator resolves template names relative to dir.
func NewTemplateGenerator(dir string) *TemplateGenerator {
	return &TemplateGenerator{dir: dir, cache: map[string]*template.Template{}}
}

var funcs = template.FuncMap{
	"slug":  textutil.Slugify,
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join":  strings.Join,
}

// Generate renders spec for item.
func (g *TemplateGenerator) Generate(ctx context.Context, spec definitions.DeliverableSpec, item ItemContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tmpl, err := g.lookup(spec.Template)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, buildView(spec, item)); err != nil {
		return "", services.Wrap(services.ErrExecution, "generator", "render", spec.Name, err)
	}
	return b.String(), nil
}

func (g *TemplateGenerator) lookup(name string) (*template.Template, error) {
	name = strings.TrimSpace(name)
	g.mu.Lock()
	defer g.mu.Unlock()
	if tmpl, ok := g.cache[name]; ok {
		return tmpl, nil
	}

	source := defaultTemplate
	if name != "" && g.dir != "" {
		path := filepath.Join(g.dir, filepath.FromSlash(name))
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			source = string(data)
		case errors.Is(err, fs.ErrNotExist):
			// Template names without a file are logical names; use the default layout.
		default:
			return nil, services.Wrap(services.ErrExecution, "generator", "load template", path, err)
		}
	}
	tmpl, err := template.New(textutil.Ternary(name == "", "default", name)).Funcs(funcs).Option("missingkey=zero").Parse(source)
	if err != nil {
		return nil, services.WrapCode(services.ErrConfiguration, "generator", "parse template", "invalid_template", name, err)
	}
	g.cache[name] = tmpl
	return tmpl, nil
}

func buildView(spec definitions.DeliverableSpec, item ItemContext) view {
	now := item.Now
	if now.IsZero() {
		now = time.Now()
	}
	v := view{
		Title:       textutil.Ternary(strings.TrimSpace(spec.Title) != "", spec.Title, spec.Name),
		Description: strings.TrimSpace(spec.Description),
		Sections:    spec.Sections,
		PlanID:      item.PlanID,
		Stage:       item.Stage,
		Generated:   now.UTC().Format(time.RFC3339),
		Issue: issueView{
			Number: item.Issue.Number,
			Title:  item.Issue.Title,
			Body:   strings.TrimSpace(item.Issue.Body),
			URL:    item.Issue.URL,
			Labels: item.Issue.Labels,
		},
	}
	if item.Workflow != nil {
		v.WorkflowName = item.Workflow.Name
		v.Category = item.Workflow.Category
	}
	return v
}

// BasicRecovery emits a minimal placeholder deliverable. It only fails when
// the context is done.
type BasicRecovery struct{}

// Generate renders the placeholder.
func (BasicRecovery) Generate(ctx context.Context, spec definitions.DeliverableSpec, item ItemContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	title := textutil.Ternary(strings.TrimSpace(spec.Title) != "", spec.Title, spec.Name)
	workflow := ""
	if item.Workflow != nil {
		workflow = item.Workflow.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "_Issue #%d: %s_\n\n", item.Issue.Number, item.Issue.Title)
	fmt.Fprintf(&b, "This deliverable was produced by the recovery generator for workflow %q after the primary generator failed.\n", workflow)
	for _, section := range spec.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n_Needs manual review._\n", section)
	}
	return b.String(), nil
}
