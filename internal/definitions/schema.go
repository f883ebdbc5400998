package definitions

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)


// Schema profile identifiers.
const (
	ProfileBase     = "base/v1"
	ProfileTaxonomy = "taxonomy/v1"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://speculum.dev/schemas/workflow/"

var profileFiles = map[string]string{
	ProfileBase:     "schemas/base_v1.json",
	ProfileTaxonomy: "schemas/taxonomy_v1.json",
}

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func profiles() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		urls := make(map[string]string, len(profileFiles))
		for profile, file := range profileFiles {
			raw, err := schemaFS.ReadFile(file)
			if err != nil {
				compileErr = fmt.Errorf("read schema %s: %w", profile, err)
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
			if err != nil {
				compileErr = fmt.Errorf("parse schema %s: %w", profile, err)
				return
			}
			url := schemaBaseURL + profile + ".json"
			if err := compiler.AddResource(url, doc); err != nil {
				compileErr = fmt.Errorf("add schema %s: %w", profile, err)
				return
			}
			urls[profile] = url
		}
		out := make(map[string]*jsonschema.Schema, len(urls))
		for profile, url := range urls {
			sch, err := compiler.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", profile, err)
				return
			}
			out[profile] = sch
		}
		compiled = out
	})
	return compiled, compileErr
}

// validateProfile checks instance (decoded with jsonschema.UnmarshalJSON)
// against the named profile. It returns nil when the instance conforms.
func validateProfile(profile string, instance any) error {
	schemas, err := profiles()
	if err != nil {
		return err
	}
	sch, ok := schemas[profile]
	if !ok {
		return fmt.Errorf("unknown schema profile %q", profile)
	}
	return sch.Validate(instance)
}

// describeViolation flattens a validation error into "path: message" items.
func describeViolation(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}
	leaves := collectLeaves(message.NewPrinter(language.English), verr, nil)
	if len(leaves) == 0 {
		return verr.Error()
	}
	return strings.Join(leaves, "; ")
}

func collectLeaves(p *message.Printer, verr *jsonschema.ValidationError, out []string) []string {
	if len(verr.Causes) == 0 {
		path := "/" + strings.Join(verr.InstanceLocation, "/")
		out = append(out, fmt.Sprintf("%s: %s", path, verr.ErrorKind.LocalizedString(p)))
		return out
	}
	for _, cause := range verr.Causes {
		out = collectLeaves(p, cause, out)
	}
	return out
}
