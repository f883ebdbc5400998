package definitions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"speculum/internal/services"
)

// Stable load error codes.
const (
	CodeInvalidRoot          = "invalid_root"
	CodeMissingTriggerLabels = "missing_trigger_labels"
	CodeMissingDeliverables  = "missing_deliverables"
	CodeSchemaViolation      = "schema_violation"
	CodeParseError           = "parse_error"
	CodeDuplicateName        = "duplicate_name"
	CodeReadError            = "read_error"
)

var knownKeys = map[string]struct{}{
	"name": {}, "description": {}, "version": {}, "category": {}, "priority": {},
	"confidence_threshold": {}, "trigger_labels": {}, "deliverables": {},
	"output": {}, "metadata": {},
}

// LoadFile reads and parses a single definition file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, loadError(CodeReadError, path, "read definition", err)
	}
	return Parse(data, path)
}

// Parse decodes YAML definition source. source is only used in error messages
// and recorded on the result.
func Parse(data []byte, source string) (*Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, loadError(CodeParseError, source, "decode yaml", err)
	}
	root, ok := raw.(map[string]any)
	if !ok || len(root) == 0 {
		return nil, loadError(CodeInvalidRoot, source, "definition root must be a mapping", nil)
	}
	normalizeScalars(root)

	if !hasNonEmptyList(root["trigger_labels"]) {
		return nil, loadError(CodeMissingTriggerLabels, source, "trigger_labels must list at least one label", nil)
	}
	if !hasNonEmptyList(root["deliverables"]) {
		return nil, loadError(CodeMissingDeliverables, source, "deliverables must list at least one deliverable", nil)
	}

	encoded, err := json.Marshal(root)
	if err != nil {
		return nil, loadError(CodeParseError, source, "convert to json", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return nil, loadError(CodeParseError, source, "decode json instance", err)
	}
	if err := validateProfile(ProfileBase, instance); err != nil {
		return nil, loadError(CodeSchemaViolation, source, describeViolation(err), err)
	}

	def := &Definition{}
	if err := json.Unmarshal(encoded, def); err != nil {
		return nil, loadError(CodeParseError, source, "decode definition", err)
	}
	def.Legacy = validateProfile(ProfileTaxonomy, instance) != nil
	def.SourcePath = source
	def.Extensions = extensions(root)
	tidy(def)
	return def, nil
}

func loadError(code, source, message string, err error) error {
	if source != "" {
		message = fmt.Sprintf("%s: %s", source, message)
	}
	hint := ""
	switch code {
	case CodeMissingTriggerLabels, CodeMissingDeliverables, CodeSchemaViolation:
		hint = "fix the definition file or set workflows.strict = false to skip it"
	case CodeDuplicateName:
		hint = "workflow names must be unique ignoring case"
	}
	wrapped := services.WrapCode(services.ErrConfiguration, "definitions", "load", code, message, err)
	if hint != "" {
		wrapped = services.WithHint(wrapped, hint)
	}
	return wrapped
}

// normalizeScalars turns YAML numbers written without quotes (version: 1.0)
// into strings where the schema expects text.
func normalizeScalars(root map[string]any) {
	for _, key := range []string{"version", "name", "category", "description"} {
		switch v := root[key].(type) {
		case int:
			root[key] = strconv.Itoa(v)
		case float64:
			root[key] = strconv.FormatFloat(v, 'f', -1, 64)
			if key == "version" && !strings.Contains(root[key].(string), ".") {
				root[key] = root[key].(string) + ".0"
			}
		}
	}
}

func hasNonEmptyList(value any) bool {
	items, ok := value.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return true
			}
		case nil:
		default:
			return true
		}
	}
	return false
}

func extensions(root map[string]any) map[string]any {
	var out map[string]any
	for key, value := range root {
		if _, known := knownKeys[key]; known {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[key] = value
	}
	return out
}

func tidy(def *Definition) {
	def.Name = strings.TrimSpace(def.Name)
	def.Category = strings.TrimSpace(def.Category)
	def.TriggerLabels = uniqueTrimmed(def.TriggerLabels, true)
	def.Metadata.Dependencies = uniqueTrimmed(def.Metadata.Dependencies, false)
	for i := range def.Deliverables {
		d := &def.Deliverables[i]
		d.Name = strings.TrimSpace(d.Name)
		d.Template = strings.TrimSpace(d.Template)
		d.OutputFile = strings.TrimSpace(d.OutputFile)
	}
}

func uniqueTrimmed(values []string, foldCase bool) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := v
		if foldCase {
			key = strings.ToLower(v)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// sortByName orders definitions by lower-cased name, then raw name.
func sortByName(defs []*Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		a, b := defs[i].Key(), defs[j].Key()
		if a != b {
			return a < b
		}
		return defs[i].Name < defs[j].Name
	})
}
