package testsupport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"speculum/internal/definitions"
	"speculum/internal/generator"
	"speculum/internal/services"
)

// FakeGenerator renders "<workflow>/<deliverable>" and can be told to fail or
// panic for specific workflows.
type FakeGenerator struct {
	mu     sync.Mutex
	fail   map[string]error
	panics map[string]bool
	Calls  []string
}

var _ generator.Generator = (*FakeGenerator)(nil)

// NewFakeGenerator returns a generator that always succeeds.
func NewFakeGenerator() *FakeGenerator {
	return &FakeGenerator{fail: map[string]error{}, panics: map[string]bool{}}
}

// FailWorkflow makes every deliverable of workflow fail with err.
func (g *FakeGenerator) FailWorkflow(workflow string, err error) *FakeGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		err = services.Wrap(services.ErrExecution, "fake-generator", "generate", workflow+" failed", nil)
	}
	g.fail[strings.ToLower(workflow)] = err
	return g
}

// PanicWorkflow makes workflow panic during generation.
func (g *FakeGenerator) PanicWorkflow(workflow string) *FakeGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.panics[strings.ToLower(workflow)] = true
	return g
}

// Generate implements generator.Generator.
func (g *FakeGenerator) Generate(ctx context.Context, spec definitions.DeliverableSpec, item generator.ItemContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := ""
	if item.Workflow != nil {
		name = item.Workflow.Name
	}
	g.mu.Lock()
	g.Calls = append(g.Calls, name+"/"+spec.Name)
	err := g.fail[strings.ToLower(name)]
	panics := g.panics[strings.ToLower(name)]
	g.mu.Unlock()
	if panics {
		panic(fmt.Sprintf("generator exploded in %s", name))
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s for #%d\n", name, spec.Name, item.Issue.Number), nil
}

// CallCount returns how many deliverables were requested.
func (g *FakeGenerator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}
