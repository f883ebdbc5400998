package state_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speculum/internal/planner"
	"speculum/internal/retry"
	"speculum/internal/services"
	"speculum/internal/state"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) (*state.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "processing_state.json")
	store, err := state.Open(path, state.Options{Now: func() time.Time { return epoch }})
	require.NoError(t, err)
	return store, path
}

func TestRecordLifecycle(t *testing.T) {
	rec := state.NewRecord(12, epoch)
	require.NoError(t, rec.Begin(epoch))
	assert.Equal(t, state.StatusProcessing, rec.Status)
	require.NotNil(t, rec.StartedAt)

	later := epoch.Add(time.Minute)
	require.NoError(t, rec.Complete(later, []string{"A", "B"}, []string{"out/a.md"}))
	assert.Equal(t, state.StatusCompleted, rec.Status)
	assert.Equal(t, "A, B", rec.WorkflowName)
	assert.Equal(t, []string{"out/a.md"}, rec.CreatedFiles)
	assert.Equal(t, later, *rec.CompletedAt)

	require.NoError(t, rec.Begin(later), "terminal records start a fresh attempt")
	assert.Nil(t, rec.CompletedAt)
	err := services.WrapCode(services.ErrPlanning, "planner", "build", "unresolved_dependencies", "cycle", nil)
	require.NoError(t, rec.Fail(later, nil, err))
	assert.Equal(t, state.StatusError, rec.Status)
	assert.Equal(t, "PlanningError", rec.ErrorType)
	assert.Equal(t, "unresolved_dependencies", rec.ErrorCode)
	assert.Contains(t, rec.ErrorMessage, "cycle")
}

func TestRecordRejectsIllegalTransitions(t *testing.T) {
	rec := state.NewRecord(1, epoch)
	err := rec.Complete(epoch, nil, nil)
	require.ErrorIs(t, err, services.ErrValidation)
	assert.Equal(t, state.CodeInvalidTransition, services.Details(err).Code)

	require.Error(t, rec.Pause(epoch))
	require.Error(t, rec.Resume(epoch))
	require.Error(t, rec.CloseStale(epoch, time.Minute))
}

func TestStaleAttemptEscalatesToPaused(t *testing.T) {
	rec := state.NewRecord(5, epoch)
	require.NoError(t, rec.Begin(epoch))

	timeout := 30 * time.Minute
	assert.False(t, rec.IsStale(epoch.Add(10*time.Minute), timeout))
	now := epoch.Add(31 * time.Minute)
	require.True(t, rec.IsStale(now, timeout))

	require.NoError(t, rec.CloseStale(now, timeout))
	assert.Equal(t, state.StatusError, rec.Status)
	assert.Equal(t, state.CodeProcessingTimeout, rec.ErrorCode)
	assert.Equal(t, state.ErrorTypeTimeout, rec.ErrorType)
	assert.Equal(t, 1, rec.RetryCount)

	require.NoError(t, rec.Pause(now))
	assert.Equal(t, state.StatusPaused, rec.Status)

	require.NoError(t, rec.Resume(now))
	assert.Equal(t, state.StatusPending, rec.Status)
	assert.Zero(t, rec.RetryCount)
}

func TestStoreRoundTrip(t *testing.T) {
	store, path := openStore(t)
	ctx := context.Background()

	summary := planner.Summary{PlanID: "p-1", StageCount: 1, WorkflowCount: 1, Stages: []planner.StageSummary{{Workflows: []string{"A"}}}}
	rec, err := store.Update(ctx, 42, func(r *state.Record) error {
		if err := r.Begin(store.Now()); err != nil {
			return err
		}
		r.MultiWorkflow = &summary
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, state.StatusProcessing, rec.Status)

	reopened, err := state.Open(path, state.Options{})
	require.NoError(t, err)
	got, ok := reopened.Get(42)
	require.True(t, ok)
	assert.Equal(t, state.StatusProcessing, got.Status)
	require.NotNil(t, got.MultiWorkflow)
	assert.Equal(t, "p-1", got.MultiWorkflow.PlanID)
	assert.Equal(t, []string{}, got.CreatedFiles)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "processing", decoded["42"]["status"])
	assert.Contains(t, decoded["42"], "multi_workflow_execution")
	assert.Contains(t, decoded["42"], "updated_at")
}

func TestStoreUpdateErrorWritesNothing(t *testing.T) {
	store, path := openStore(t)
	_, err := store.Update(context.Background(), 3, func(r *state.Record) error {
		return errors.New("nope")
	})
	require.Error(t, err)
	_, ok := store.Get(3)
	assert.False(t, ok)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStoreQuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processing_state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := state.Open(path, state.Options{Now: func() time.Time { return epoch }})
	require.NoError(t, err)
	assert.Empty(t, store.List())

	_, err = os.Stat(path + ".corrupt-" + "1772366400")
	assert.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestStoreQuarantinesUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processing_state.json")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "nested"), 0o755))

	store, err := state.Open(path, state.Options{Now: func() time.Time { return epoch }})
	require.NoError(t, err)
	assert.Empty(t, store.List())

	info, err := os.Stat(path + ".corrupt-1772366400")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = store.Update(context.Background(), 3, func(r *state.Record) error { return r.Begin(epoch) })
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestStoreListAndCounts(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	for _, issue := range []int{9, 2, 5} {
		_, err := store.Update(ctx, issue, func(r *state.Record) error { return r.Begin(epoch) })
		require.NoError(t, err)
	}
	_, err := store.Update(ctx, 5, func(r *state.Record) error { return r.Complete(epoch, nil, nil) })
	require.NoError(t, err)

	var issues []int
	for _, rec := range store.List() {
		issues = append(issues, rec.IssueNumber)
	}
	assert.Equal(t, []int{2, 5, 9}, issues)
	assert.Len(t, store.ListByStatus(state.StatusProcessing), 2)
	assert.Equal(t, 1, store.Counts()[state.StatusCompleted])

	require.NoError(t, store.Delete(ctx, 2))
	assert.Len(t, store.List(), 2)
}

func TestStoreSaveRetriesThenFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "processing_state.json")
	attempts := 0
	store, err := state.Open(path, state.Options{Retry: retry.Policy{
		MaxAttempts: 3,
		Sleep: func(context.Context, time.Duration) error {
			attempts++
			return nil
		},
	}})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "nested")))

	err = store.Put(context.Background(), state.NewRecord(1, epoch))
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrPersistence)
	assert.Equal(t, 2, attempts)
	_, ok := store.Get(1)
	assert.False(t, ok, "failed save must not leave the record in memory")
}

func TestStoreRejectsInvalidIssue(t *testing.T) {
	store, _ := openStore(t)
	err := store.Put(context.Background(), state.Record{IssueNumber: 0})
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestParseStatus(t *testing.T) {
	status, ok := state.ParseStatus(" Needs_Clarification ")
	require.True(t, ok)
	assert.Equal(t, state.StatusNeedsClarification, status)
	_, ok = state.ParseStatus("bogus")
	assert.False(t, ok)
	assert.True(t, state.StatusError.IsTerminal())
	assert.False(t, state.StatusPaused.IsTerminal())
}
