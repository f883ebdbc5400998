package candidates

import (
	"sort"
	"strings"

	"speculum/internal/definitions"
)

// DefaultPriority is used when a definition has no priority or a negative one.
// Lower values are scheduled first.
const DefaultPriority = 50

// Conflict key prefixes.
const (
	KeyFolder              = "folder:"
	KeyFile                = "file:"
	KeyDeliverable         = "deliverable:"
	KeyDeliverableTemplate = "deliverable-template:"
	KeyCategory            = "category:"
	KeyLegacyMode          = "mode:legacy"
)

// Candidate is a matched workflow ready for planning. The zero value is not
// useful; build one with New or FromDefinition.
type Candidate struct {
	def          *definitions.Definition
	priority     int
	conflictKeys []string
	dependencies []string
}

// New builds a candidate with explicit attributes. Conflict keys are sorted
// and deduplicated; dependency names are trimmed, blank ones dropped, and
// duplicates removed in first-seen order.
func New(def *definitions.Definition, priority int, conflictKeys, dependencies []string) Candidate {
	return Candidate{
		def:          def,
		priority:     priority,
		conflictKeys: normalizeKeys(conflictKeys),
		dependencies: normalizeNames(dependencies),
	}
}

// FromDefinition derives priority, conflict keys, and dependencies from def.
func FromDefinition(def *definitions.Definition) Candidate {
	return New(def, PriorityOf(def), ConflictKeysFor(def), dependenciesOf(def))
}

// PriorityOf returns the definition's priority or DefaultPriority.
func PriorityOf(def *definitions.Definition) int {
	if def == nil || def.Priority == nil || *def.Priority < 0 {
		return DefaultPriority
	}
	return *def.Priority
}

// ConflictKeysFor returns the resources a definition contends for.
func ConflictKeysFor(def *definitions.Definition) []string {
	if def == nil {
		return nil
	}
	var keys []string
	if v := strings.TrimSpace(def.Output.FolderStructure); v != "" {
		keys = append(keys, KeyFolder+v)
	}
	if v := strings.TrimSpace(def.Output.FilePattern); v != "" {
		keys = append(keys, KeyFile+v)
	}
	for _, d := range def.Deliverables {
		if v := strings.TrimSpace(d.Name); v != "" {
			keys = append(keys, KeyDeliverable+v)
		}
		if v := strings.TrimSpace(d.Template); v != "" {
			keys = append(keys, KeyDeliverableTemplate+v)
		}
	}
	if v := strings.ToLower(strings.TrimSpace(def.Category)); v != "" {
		keys = append(keys, KeyCategory+v)
	}
	if def.Legacy {
		keys = append(keys, KeyLegacyMode)
	}
	return normalizeKeys(keys)
}

func dependenciesOf(def *definitions.Definition) []string {
	if def == nil {
		return nil
	}
	return def.Metadata.Dependencies
}

// Name returns the workflow name.
func (c Candidate) Name() string {
	if c.def == nil {
		return ""
	}
	return c.def.Name
}

// Key returns the lower-cased name used for ordering and lookups.
func (c Candidate) Key() string {
	return strings.ToLower(c.Name())
}

// Priority returns the scheduling priority.
func (c Candidate) Priority() int { return c.priority }

// ConflictKeys returns a copy of the sorted conflict key set.
func (c Candidate) ConflictKeys() []string { return append([]string(nil), c.conflictKeys...) }

// Dependencies returns a copy of the dependency names.
func (c Candidate) Dependencies() []string { return append([]string(nil), c.dependencies...) }

// Definition returns the underlying definition. It is shared and read-only.
func (c Candidate) Definition() *definitions.Definition { return c.def }

// HasConflictKey reports whether key is in the candidate's conflict set.
func (c Candidate) HasConflictKey(key string) bool {
	i := sort.SearchStrings(c.conflictKeys, key)
	return i < len(c.conflictKeys) && c.conflictKeys[i] == key
}

// Less orders candidates by priority, then case-insensitive name, then name.
func Less(a, b Candidate) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	if ak, bk := a.Key(), b.Key(); ak != bk {
		return ak < bk
	}
	return a.Name() < b.Name()
}

// Sort orders candidates in place using Less.
func Sort(list []Candidate) {
	sort.SliceStable(list, func(i, j int) bool { return Less(list[i], list[j]) })
}

// Names returns candidate names in list order.
func Names(list []Candidate) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.Name())
	}
	return out
}

func normalizeKeys(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizeNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
