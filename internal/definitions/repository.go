package definitions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sourcegraph/conc/iter"
	"golang.org/x/sync/singleflight"

	"speculum/internal/logging"
	"speculum/internal/services"
)

// DefaultPattern matches every YAML definition below the repository root.
const DefaultPattern = "**/*.{yaml,yml}"

// LoadIssue records a definition file skipped by a lenient refresh.
type LoadIssue struct {
	Path    string
	Code    string
	Message string
}

// Options configures a Repository.
type Options struct {
	// Strict makes any bad file fail the whole refresh. Lenient repositories
	// skip the file and record a LoadIssue.
	Strict bool
	// RescanInterval bounds snapshot age for RefreshIfStale. Zero disables
	// periodic rescans.
	RescanInterval time.Duration
	Pattern        string
	Logger         *slog.Logger
	Now            func() time.Time
}

// Repository owns the current snapshot of workflow definitions.
type Repository struct {
	dir    string
	opts   Options
	logger *slog.Logger
	group  singleflight.Group

	mu       sync.RWMutex
	defs     []*Definition
	byKey    map[string]*Definition
	issues   []LoadIssue
	lastScan time.Time
}

// New creates a repository rooted at dir. No files are read until Refresh.
func New(dir string, opts Options) *Repository {
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Repository{
		dir:    dir,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "definitions"),
		byKey:  map[string]*Definition{},
	}
}

// NewStatic builds an in-memory repository from already-parsed definitions.
// Refresh on a static repository is a no-op.
func NewStatic(defs ...*Definition) (*Repository, error) {
	r := New("", Options{})
	if err := r.install(defs, nil); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the root directory scanned by Refresh.
func (r *Repository) Dir() string { return r.dir }

// Refresh rescans the directory and atomically replaces the snapshot.
// Concurrent callers share a single scan. On failure the previous snapshot is
// kept.
func (r *Repository) Refresh(ctx context.Context) error {
	if r.dir == "" {
		return nil
	}
	_, err, _ := r.group.Do("refresh", func() (any, error) {
		return nil, r.refresh(ctx)
	})
	return err
}

// RefreshIfStale refreshes when the snapshot was never loaded or is older than
// the configured rescan interval.
func (r *Repository) RefreshIfStale(ctx context.Context) error {
	last := r.LastScan()
	if !last.IsZero() && (r.opts.RescanInterval <= 0 || r.opts.Now().Sub(last) < r.opts.RescanInterval) {
		return nil
	}
	return r.Refresh(ctx)
}

type parseResult struct {
	path string
	def  *Definition
	err  error
}

func (r *Repository) refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	paths, err := r.discover()
	if err != nil {
		return err
	}

	results := iter.Map(paths, func(path *string) parseResult {
		if ctx.Err() != nil {
			return parseResult{path: *path, err: ctx.Err()}
		}
		def, err := LoadFile(*path)
		return parseResult{path: *path, def: def, err: err}
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		defs     = make([]*Definition, 0, len(results))
		issues   []LoadIssue
		failures []error
	)
	for _, res := range results {
		if res.err != nil {
			failures = append(failures, res.err)
			issues = append(issues, issueFor(res.path, res.err))
			continue
		}
		defs = append(defs, res.def)
	}

	if r.opts.Strict && len(failures) > 0 {
		return errors.Join(failures...)
	}
	if err := r.install(defs, issues); err != nil {
		return err
	}
	for _, issue := range r.Issues() {
		logging.WarnWithContext(r.logger, "workflow definition skipped", "definition_skipped",
			logging.String("path", issue.Path),
			logging.String(logging.FieldErrorCode, issue.Code),
			logging.String("reason", issue.Message),
			logging.String(logging.FieldImpact, "workflow unavailable until the file is fixed"),
		)
	}
	r.logger.Info("workflow definitions loaded",
		logging.String(logging.FieldEventType, "definitions_refreshed"),
		logging.Int("definitions", len(r.All())),
		logging.Int("skipped", len(issues)),
		logging.String("dir", r.dir),
	)
	return nil
}

func (r *Repository) discover() ([]string, error) {
	info, err := os.Stat(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if r.opts.Strict {
				return nil, services.WrapCode(services.ErrConfiguration, "definitions", "discover", "missing_directory",
					fmt.Sprintf("definitions directory %s does not exist", r.dir), err)
			}
			return nil, nil
		}
		return nil, services.Wrap(services.ErrConfiguration, "definitions", "discover", "stat directory", err)
	}
	if !info.IsDir() {
		return nil, services.WrapCode(services.ErrConfiguration, "definitions", "discover", "not_a_directory",
			fmt.Sprintf("%s is not a directory", r.dir), nil)
	}
	matches, err := doublestar.Glob(os.DirFS(r.dir), r.opts.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "definitions", "discover", "glob "+r.opts.Pattern, err)
	}
	sort.Strings(matches)
	paths := make([]string, 0, len(matches))
	for _, rel := range matches {
		paths = append(paths, filepath.Join(r.dir, filepath.FromSlash(rel)))
	}
	return paths, nil
}

// install replaces the snapshot. Duplicate names (case-insensitive) are an
// error in strict mode; otherwise the first file in path order wins.
func (r *Repository) install(defs []*Definition, issues []LoadIssue) error {
	byKey := make(map[string]*Definition, len(defs))
	kept := make([]*Definition, 0, len(defs))
	var dupErrs []error
	for _, def := range defs {
		if def == nil {
			continue
		}
		key := def.Key()
		if prior, dup := byKey[key]; dup {
			err := loadError(CodeDuplicateName, def.SourcePath,
				fmt.Sprintf("workflow %q already defined by %s", def.Name, prior.SourcePath), nil)
			dupErrs = append(dupErrs, err)
			issues = append(issues, issueFor(def.SourcePath, err))
			continue
		}
		byKey[key] = def
		kept = append(kept, def)
	}
	if len(dupErrs) > 0 && (r.opts.Strict || r.dir == "") {
		return errors.Join(dupErrs...)
	}
	sortByName(kept)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = kept
	r.byKey = byKey
	r.issues = issues
	r.lastScan = r.opts.Now()
	return nil
}

func issueFor(path string, err error) LoadIssue {
	details := services.Details(err)
	return LoadIssue{Path: path, Code: details.Code, Message: details.Message}
}

// All returns the snapshot ordered by case-insensitive name.
func (r *Repository) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Get looks up a definition by name, ignoring case.
func (r *Repository) Get(name string) (*Definition, bool) {
	probe := Definition{Name: name}
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byKey[probe.Key()]
	return def, ok
}

// LastScan returns when the snapshot was last replaced.
func (r *Repository) LastScan() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastScan
}

// Issues returns the files skipped by the last lenient refresh.
func (r *Repository) Issues() []LoadIssue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LoadIssue, len(r.issues))
	copy(out, r.issues)
	return out
}
