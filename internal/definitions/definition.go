package definitions

import (
	"strings"

	"speculum/internal/textutil"
)

// DeliverableSpec describes one artifact a workflow produces.
type DeliverableSpec struct {
	Name        string   `json:"name"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Template    string   `json:"template,omitempty"`
	OutputFile  string   `json:"output_file,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Sections    []string `json:"sections,omitempty"`
}

// Output holds the optional layout templates for a workflow's deliverables.
type Output struct {
	FolderStructure string `json:"folder_structure,omitempty"`
	FilePattern     string `json:"file_pattern,omitempty"`
}

// Metadata carries the structured optional fields the planner reads.
type Metadata struct {
	Dependencies []string `json:"dependencies,omitempty"`
}

// Definition is a validated workflow definition. Values handed out by a
// Repository are shared and must be treated as read-only.
type Definition struct {
	Name                string            `json:"name"`
	Description         string            `json:"description,omitempty"`
	Version             string            `json:"version,omitempty"`
	Category            string            `json:"category,omitempty"`
	Priority            *int              `json:"priority,omitempty"`
	ConfidenceThreshold *float64          `json:"confidence_threshold,omitempty"`
	TriggerLabels       []string          `json:"trigger_labels"`
	Deliverables        []DeliverableSpec `json:"deliverables"`
	Output              Output            `json:"output,omitempty"`
	Metadata            Metadata          `json:"metadata,omitempty"`

	// Extensions keeps top-level keys the schema profiles do not model.
	Extensions map[string]any `json:"-"`
	// Legacy is true when the definition does not satisfy taxonomy/v1.
	Legacy bool `json:"-"`
	// SourcePath is the file the definition was loaded from, if any.
	SourcePath string `json:"-"`
}

// Key returns the case-insensitive identity used for uniqueness checks.
func (d *Definition) Key() string {
	if d == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(d.Name))
}

// Slug returns the filesystem-safe workflow slug.
func (d *Definition) Slug() string {
	if d == nil {
		return ""
	}
	if slug := textutil.Slugify(d.Name); slug != "" {
		return slug
	}
	return textutil.SanitizeToken(d.Name)
}

// MatchesAny reports whether any trigger label equals one of labels, ignoring case.
func (d *Definition) MatchesAny(labels []string) bool {
	if d == nil {
		return false
	}
	for _, trigger := range d.TriggerLabels {
		for _, label := range labels {
			if strings.EqualFold(strings.TrimSpace(trigger), strings.TrimSpace(label)) {
				return true
			}
		}
	}
	return false
}

// Profile names the schema profile the definition satisfies.
func (d *Definition) Profile() string {
	if d == nil || d.Legacy {
		return ProfileBase
	}
	return ProfileTaxonomy
}
