package testsupport

import (
	"strings"

	"speculum/internal/definitions"
)

// DefinitionOption customizes a definition built by NewDefinition.
type DefinitionOption func(*definitions.Definition)

// NewDefinition returns a taxonomy-compliant definition triggered by a label
// equal to its name. The default deliverable is "summary".
func NewDefinition(name string, opts ...DefinitionOption) *definitions.Definition {
	priority := 10
	threshold := 0.5
	def := &definitions.Definition{
		Name:                name,
		Version:             "1.0",
		Category:            "general",
		Priority:            &priority,
		ConfidenceThreshold: &threshold,
		TriggerLabels:       []string{strings.ToLower(name)},
		Deliverables:        []definitions.DeliverableSpec{{Name: "summary", Title: "Summary"}},
	}
	for _, opt := range opts {
		opt(def)
	}
	return def
}

// WithPriority sets the priority.
func WithPriority(p int) DefinitionOption {
	return func(d *definitions.Definition) { d.Priority = &p }
}

// WithoutPriority clears the priority (and marks the definition legacy, as
// taxonomy/v1 requires one).
func WithoutPriority() DefinitionOption {
	return func(d *definitions.Definition) {
		d.Priority = nil
		d.Legacy = true
	}
}

// WithCategory sets the category.
func WithCategory(c string) DefinitionOption {
	return func(d *definitions.Definition) { d.Category = c }
}

// WithTriggers replaces the trigger labels.
func WithTriggers(labels ...string) DefinitionOption {
	return func(d *definitions.Definition) { d.TriggerLabels = labels }
}

// WithDeliverables replaces the deliverable list with plain named entries.
func WithDeliverables(names ...string) DefinitionOption {
	return func(d *definitions.Definition) {
		d.Deliverables = d.Deliverables[:0]
		for _, n := range names {
			d.Deliverables = append(d.Deliverables, definitions.DeliverableSpec{Name: n})
		}
	}
}

// WithDeliverable appends a fully specified deliverable.
func WithDeliverable(spec definitions.DeliverableSpec) DefinitionOption {
	return func(d *definitions.Definition) { d.Deliverables = append(d.Deliverables, spec) }
}

// WithDependencies sets metadata.dependencies.
func WithDependencies(names ...string) DefinitionOption {
	return func(d *definitions.Definition) { d.Metadata.Dependencies = names }
}

// WithOutput sets the folder and file templates.
func WithOutput(folder, file string) DefinitionOption {
	return func(d *definitions.Definition) {
		d.Output = definitions.Output{FolderStructure: folder, FilePattern: file}
	}
}

// AsLegacy marks the definition as legacy.
func AsLegacy() DefinitionOption {
	return func(d *definitions.Definition) {
		d.Legacy = true
		d.Version = ""
	}
}

// StaticSource is a fixed definition list satisfying candidates.Source.
type StaticSource []*definitions.Definition

// All returns the definitions.
func (s StaticSource) All() []*definitions.Definition {
	out := make([]*definitions.Definition, len(s))
	copy(out, s)
	return out
}
