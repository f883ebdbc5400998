package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"speculum/internal/logging"
	"speculum/internal/retry"
	"speculum/internal/services"
)

const lockRetryDelay = 25 * time.Millisecond

// Options configures a Store.
type Options struct {
	Logger *slog.Logger
	// Retry wraps every save. The zero value saves once.
	Retry retry.Policy
	Now   func() time.Time
}

// Store is the JSON-file backed record store.
type Store struct {
	path    string
	lock    *flock.Flock
	mu      sync.Mutex
	records map[int]*Record
	logger  *slog.Logger
	retry   retry.Policy
	now     func() time.Time
}

// Open loads path, creating an empty store when the file does not exist. A
// file that cannot be read or decoded is renamed to <path>.corrupt-<unix> and
// the store starts empty.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, services.Wrap(services.ErrConfiguration, "state", "open", "state file path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "state", "open", "create state directory", err)
	}
	s := &Store{
		path:    path,
		lock:    flock.New(path + ".lock"),
		records: map[int]*Record{},
		logger:  logging.NewComponentLogger(opts.Logger, "state"),
		retry:   opts.Retry,
		now:     opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Now returns the store clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Reload discards the in-memory view and reads the file again.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = map[int]*Record{}
	return s.load()
}

// Get returns a copy of the record for issue.
func (s *Store) Get(issue int) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[issue]
	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

// List returns copies of every record ordered by issue number.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueNumber < out[j].IssueNumber })
	return out
}

// ListByStatus filters List to the given statuses.
func (s *Store) ListByStatus(statuses ...Status) []Record {
	want := make(map[Status]struct{}, len(statuses))
	for _, st := range statuses {
		want[st] = struct{}{}
	}
	var out []Record
	for _, rec := range s.List() {
		if _, ok := want[rec.Status]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// Counts returns the number of records per status.
func (s *Store) Counts() map[Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Status]int, len(allStatuses))
	for _, rec := range s.records {
		out[rec.Status]++
	}
	return out
}

// Put replaces the record for rec.IssueNumber and persists the file.
func (s *Store) Put(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(ctx, rec)
}

// Update loads (or creates) the record for issue, applies fn, and persists the
// result. When fn returns an error nothing is written.
func (s *Store) Update(ctx context.Context, issue int, fn func(*Record) error) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec Record
	if existing, ok := s.records[issue]; ok {
		rec = existing.Clone()
	} else {
		rec = NewRecord(issue, s.now())
	}
	if err := fn(&rec); err != nil {
		return Record{}, err
	}
	if err := s.putLocked(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec.Clone(), nil
}

// Delete removes an issue's record.
func (s *Store) Delete(ctx context.Context, issue int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.records[issue]
	if !ok {
		return nil
	}
	delete(s.records, issue)
	if err := s.saveLocked(ctx); err != nil {
		s.records[issue] = prev
		return err
	}
	return nil
}

func (s *Store) putLocked(ctx context.Context, rec Record) error {
	if rec.IssueNumber <= 0 {
		return services.Wrap(services.ErrValidation, "state", "put", fmt.Sprintf("invalid issue number %d", rec.IssueNumber), nil)
	}
	if rec.CreatedFiles == nil {
		rec.CreatedFiles = []string{}
	}
	stored := rec.Clone()
	prev, hadPrev := s.records[rec.IssueNumber]
	s.records[rec.IssueNumber] = &stored
	if err := s.saveLocked(ctx); err != nil {
		if hadPrev {
			s.records[rec.IssueNumber] = prev
		} else {
			delete(s.records, rec.IssueNumber)
		}
		return err
	}
	return nil
}

func (s *Store) saveLocked(ctx context.Context) error {
	payload, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrPersistence, "state", "save", "encode state", err)
	}
	payload = append(payload, '\n')
	err = s.retry.Do(ctx, "save state", func(ctx context.Context) error {
		return s.writeFile(ctx, payload)
	})
	if err != nil {
		return services.WithHint(
			services.Wrap(services.ErrPersistence, "state", "save", s.path, err),
			"check free space and permissions on the state directory",
		)
	}
	return nil
}

func (s *Store) writeFile(ctx context.Context, payload []byte) error {
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return services.Wrap(services.ErrTransient, "state", "lock", s.lock.Path(), err)
	}
	if !locked {
		return services.Wrap(services.ErrTransient, "state", "lock", "state file is locked by another writer", nil)
	}
	defer func() { _ = s.lock.Unlock() }()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return services.Wrap(services.ErrTransient, "state", "write", "create temp file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()
		return services.Wrap(services.ErrTransient, "state", "write", "write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return services.Wrap(services.ErrTransient, "state", "write", "sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return services.Wrap(services.ErrTransient, "state", "write", "close temp file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return services.Wrap(services.ErrTransient, "state", "write", "replace state file", err)
	}
	return nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		s.quarantine(services.Wrap(services.ErrPersistence, "state", "load", s.path, err))
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	var records map[int]*Record
	if err := json.Unmarshal(data, &records); err != nil {
		s.quarantine(err)
		return nil
	}
	for issue, rec := range records {
		if rec == nil {
			continue
		}
		rec.IssueNumber = issue
		if _, ok := statusSet[rec.Status]; !ok {
			s.logger.Warn("state record has unknown status; treating as pending",
				logging.String(logging.FieldEventType, "state_unknown_status"),
				logging.Int(logging.FieldIssue, issue),
				logging.String("status", string(rec.Status)),
				logging.String(logging.FieldErrorHint, "inspect the state file for manual edits"),
				logging.String(logging.FieldImpact, "issue will be reprocessed"),
			)
			rec.Status = StatusPending
		}
		if rec.CreatedFiles == nil {
			rec.CreatedFiles = []string{}
		}
		s.records[issue] = rec
	}
	return nil
}

func (s *Store) quarantine(cause error) {
	target := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	attrs := []logging.Attr{
		logging.String("path", s.path),
		logging.String("quarantine_path", target),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "inspect the quarantined file; state restarts empty"),
		logging.String(logging.FieldImpact, "previous processing history is unavailable"),
	}
	if err := os.Rename(s.path, target); err != nil {
		attrs = append(attrs, logging.String("rename_error", err.Error()))
	}
	logging.ErrorWithContext(s.logger, "state file is unreadable; starting empty", "state_corrupt", attrs...)
}
