package naming

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strconv"
	"strings"

	"speculum/internal/definitions"
	"speculum/internal/logging"
	"speculum/internal/planner"
	"speculum/internal/services"
	"speculum/internal/textutil"
)

// CodeUnresolvedPlaceholder marks templates that reference unknown tokens.
const CodeUnresolvedPlaceholder = "unresolved_placeholder"

// Template fields reported by NamingError.
const (
	FieldFolder = "folder_structure"
	FieldFile   = "file_pattern"
)

// Known placeholders.
const (
	PlaceholderIssueNumber     = "issue_number"
	PlaceholderTitleSlug       = "title_slug"
	PlaceholderWorkflowSlug    = "workflow_slug"
	PlaceholderWorkflowName    = "workflow_name"
	PlaceholderDeliverableName = "deliverable_name"
	PlaceholderDeliverableSlug = "deliverable_slug"
	PlaceholderCategory        = "category"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}]*)\}`)

// NamingError reports a template token that has no value.
type NamingError struct {
	Workflow    string
	Field       string
	Placeholder string
}

func (e *NamingError) Error() string {
	return fmt.Sprintf("workflow %q: %s references unknown placeholder {%s}", e.Workflow, e.Field, e.Placeholder)
}

// Options holds the fallback templates used when a definition has none.
type Options struct {
	FolderTemplate string
	FilePattern    string
	Logger         *slog.Logger
}

// Resolver computes Manifests.
type Resolver struct {
	folder string
	file   string
	logger *slog.Logger
}

// NewResolver constructs a resolver.
func NewResolver(opts Options) *Resolver {
	return &Resolver{
		folder: strings.TrimSpace(opts.FolderTemplate),
		file:   strings.TrimSpace(opts.FilePattern),
		logger: logging.NewComponentLogger(opts.Logger, "naming"),
	}
}

type pending struct {
	wf    int
	entry int
	slug  string
}

// Resolve formats every deliverable path of plan for item and applies the
// suffix strategy to colliding paths.
func (r *Resolver) Resolve(plan *planner.ExecutionPlan, item Item) (*Manifest, error) {
	manifest := &Manifest{}
	titleSlug := textutil.SlugifyMax(item.Title, textutil.DefaultSlugLength)
	if titleSlug == "" {
		titleSlug = "untitled"
	}

	groups := map[string][]pending{}
	var order []string
	for _, run := range plan.Runs() {
		def := run.Candidate.Definition()
		outputs := WorkflowOutputs{Workflow: run.Workflow(), Slug: workflowSlug(def, run.Workflow())}
		for _, deliverable := range deliverablesOf(def) {
			values := r.values(def, outputs, deliverable, item.Number, titleSlug)
			folder, err := expand(r.folderTemplate(def), values, outputs.Workflow, FieldFolder)
			if err != nil {
				return nil, err
			}
			file, err := expand(r.fileTemplate(def, deliverable), values, outputs.Workflow, FieldFile)
			if err != nil {
				return nil, err
			}
			original := cleanRelative(path.Join(folder, file))
			if _, seen := groups[original]; !seen {
				order = append(order, original)
			}
			groups[original] = append(groups[original], pending{
				wf:    len(manifest.Workflows),
				entry: len(outputs.Entries),
				slug:  outputs.Slug,
			})
			outputs.Entries = append(outputs.Entries, Entry{
				Workflow:    outputs.Workflow,
				Deliverable: deliverable.Name,
				Original:    original,
				Path:        original,
			})
		}
		manifest.Workflows = append(manifest.Workflows, outputs)
	}

	// Paths that never collided keep their name, so suffixed paths must avoid them.
	taken := map[string]bool{}
	for _, original := range order {
		if len(groups[original]) == 1 {
			taken[original] = true
		}
	}
	for _, original := range order {
		members := groups[original]
		if len(members) < 2 {
			continue
		}
		group := ConflictGroup{Path: original, Strategy: StrategySuffix}
		seen := map[string]int{}
		for _, m := range members {
			var resolved string
			for {
				seen[m.slug]++
				suffix := m.slug
				if n := seen[m.slug]; n > 1 {
					suffix += "--" + strconv.Itoa(n)
				}
				resolved = withSuffix(original, suffix)
				if !taken[resolved] {
					break
				}
			}
			taken[resolved] = true
			manifest.Workflows[m.wf].Entries[m.entry].Path = resolved
			group.Resolved = append(group.Resolved, resolved)
		}
		manifest.Conflicts = append(manifest.Conflicts, group)
		logging.WarnWithContext(r.logger, "deliverable paths collided; applied suffixes", "naming_conflict",
			logging.String("path", original),
			logging.String("strategy", group.Strategy),
			logging.Strings("resolved", group.Resolved),
			logging.String(logging.FieldImpact, "deliverables renamed with workflow suffix"),
			logging.String(logging.FieldErrorHint, "give workflows distinct output.file_pattern values"),
		)
	}
	return manifest, nil
}

func (r *Resolver) folderTemplate(def *definitions.Definition) string {
	if def != nil {
		if v := strings.TrimSpace(def.Output.FolderStructure); v != "" {
			return v
		}
	}
	return r.folder
}

func (r *Resolver) fileTemplate(def *definitions.Definition, d definitions.DeliverableSpec) string {
	if v := strings.TrimSpace(d.OutputFile); v != "" {
		return v
	}
	if def != nil {
		if v := strings.TrimSpace(def.Output.FilePattern); v != "" {
			return v
		}
	}
	return r.file
}

func (r *Resolver) values(def *definitions.Definition, wf WorkflowOutputs, d definitions.DeliverableSpec, number int, titleSlug string) map[string]string {
	category := ""
	if def != nil {
		category = textutil.Slugify(def.Category)
	}
	return map[string]string{
		PlaceholderIssueNumber:     strconv.Itoa(number),
		PlaceholderTitleSlug:       titleSlug,
		PlaceholderWorkflowSlug:    wf.Slug,
		PlaceholderWorkflowName:    textutil.SanitizeFileName(wf.Workflow),
		PlaceholderDeliverableName: textutil.SanitizeFileName(d.Name),
		PlaceholderDeliverableSlug: slugOr(d.Name),
		PlaceholderCategory:        textutil.Ternary(category == "", "uncategorized", category),
	}
}

func expand(template string, values map[string]string, workflow, field string) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := strings.TrimSpace(token[1 : len(token)-1])
		if v, ok := values[name]; ok {
			return v
		}
		if missing == "" {
			missing = name
		}
		return token
	})
	if missing != "" {
		cause := &NamingError{Workflow: workflow, Field: field, Placeholder: missing}
		err := services.WrapCode(services.ErrConfiguration, "naming", "resolve", CodeUnresolvedPlaceholder, cause.Error(), cause)
		return "", services.WithHint(err, "supported placeholders: issue_number, title_slug, workflow_slug, workflow_name, deliverable_name, deliverable_slug, category")
	}
	return out, nil
}

// AsNamingError extracts the NamingError carried by err.
func AsNamingError(err error) (*NamingError, bool) {
	var target *NamingError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func withSuffix(p, suffix string) string {
	dir, base := path.Split(p)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return dir + stem + "--" + suffix + ext
}

func cleanRelative(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

func workflowSlug(def *definitions.Definition, name string) string {
	if slug := def.Slug(); slug != "" {
		return slug
	}
	return slugOr(name)
}

func slugOr(value string) string {
	if slug := textutil.Slugify(value); slug != "" {
		return slug
	}
	return textutil.SanitizeToken(value)
}

func deliverablesOf(def *definitions.Definition) []definitions.DeliverableSpec {
	if def == nil {
		return nil
	}
	return def.Deliverables
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
