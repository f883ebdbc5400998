package naming

// StrategySuffix renames every colliding path with the workflow slug.
const StrategySuffix = "suffix"

// Item is the subset of a tracker issue the templates read.
type Item struct {
	Number int
	Title  string
}

// Entry is one resolved deliverable path.
type Entry struct {
	Workflow    string `json:"workflow"`
	Deliverable string `json:"deliverable"`
	// Original is the path before collision suffixes were applied.
	Original string `json:"original"`
	Path     string `json:"path"`
}

// WorkflowOutputs lists one workflow's entries in deliverable order.
type WorkflowOutputs struct {
	Workflow string  `json:"workflow"`
	Slug     string  `json:"slug"`
	Entries  []Entry `json:"entries"`
}

// ConflictGroup records paths that several deliverables resolved to.
type ConflictGroup struct {
	Path     string   `json:"path"`
	Strategy string   `json:"strategy"`
	Resolved []string `json:"resolved"`
}

// Manifest is the per-plan output layout.
type Manifest struct {
	Workflows []WorkflowOutputs `json:"workflows"`
	Conflicts []ConflictGroup   `json:"conflicts,omitempty"`
}

// PathsFor returns the resolved paths of one workflow, matched case-insensitively.
func (m *Manifest) PathsFor(workflow string) []string {
	if m == nil {
		return nil
	}
	for _, wf := range m.Workflows {
		if equalFold(wf.Workflow, workflow) {
			out := make([]string, 0, len(wf.Entries))
			for _, e := range wf.Entries {
				out = append(out, e.Path)
			}
			return out
		}
	}
	return nil
}

// Entry returns the resolved entry for a workflow deliverable.
func (m *Manifest) Entry(workflow, deliverable string) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	for _, wf := range m.Workflows {
		if !equalFold(wf.Workflow, workflow) {
			continue
		}
		for _, e := range wf.Entries {
			if e.Deliverable == deliverable {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// Paths returns every resolved path in plan order.
func (m *Manifest) Paths() []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, wf := range m.Workflows {
		for _, e := range wf.Entries {
			out = append(out, e.Path)
		}
	}
	return out
}

// HasConflicts reports whether any suffixing happened.
func (m *Manifest) HasConflicts() bool {
	return m != nil && len(m.Conflicts) > 0
}
