package github_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speculum/internal/services"
	"speculum/internal/services/github"
)

type handlerTransport struct {
	handler http.Handler
}

func (h handlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec.Result(), nil
}

type recorded struct {
	method string
	path   string
	body   map[string]any
}

func newClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*github.Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	mux := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := recorded{method: r.Method, path: r.URL.Path}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &call.body)
		}
		calls = append(calls, call)
		handler(w, r)
	})
	client, err := github.New(github.Options{
		Repository: "acme/widgets",
		Token:      "test-token",
		Transport:  handlerTransport{handler: mux},
	})
	require.NoError(t, err)
	return client, &calls
}

func TestGetIssueDecodesPayload(t *testing.T) {
	client, calls := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"number":7,"title":"Pricing page changed","body":"diff","state":"open",
			"html_url":"https://github.com/acme/widgets/issues/7",
			"labels":[{"name":"site-monitor"},{"name":"legal"}],"assignees":[{"login":"octo"}]}`)
	})

	issue, err := client.GetIssue(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, issue.Number)
	assert.Equal(t, "Pricing page changed", issue.Title)
	assert.Equal(t, []string{"site-monitor", "legal"}, issue.Labels)
	assert.Equal(t, []string{"octo"}, issue.Assignees)
	assert.True(t, issue.HasLabel("LEGAL"))
	require.Len(t, *calls, 1)
	assert.Equal(t, "/repos/acme/widgets/issues/7", (*calls)[0].path)
}

func TestMutationsHitExpectedEndpoints(t *testing.T) {
	client, calls := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{}`)
	})
	ctx := context.Background()

	require.NoError(t, client.AddLabels(ctx, 3, "speculum:done", " "))
	require.NoError(t, client.Comment(ctx, 3, "hello"))
	require.NoError(t, client.Assign(ctx, 3, "reviewer"))
	require.NoError(t, client.Unassign(ctx, 3, "bot"))
	require.NoError(t, client.EditBody(ctx, 3, "new body"))
	require.NoError(t, client.RemoveLabels(ctx, 3, "needs triage"))
	require.NoError(t, client.Assign(ctx, 3))

	got := *calls
	require.Len(t, got, 6)
	assert.Equal(t, recorded{http.MethodPost, "/repos/acme/widgets/issues/3/labels", map[string]any{"labels": []any{"speculum:done"}}}, got[0])
	assert.Equal(t, "/repos/acme/widgets/issues/3/comments", got[1].path)
	assert.Equal(t, "hello", got[1].body["body"])
	assert.Equal(t, http.MethodPost, got[2].method)
	assert.Equal(t, http.MethodDelete, got[3].method)
	assert.Equal(t, http.MethodPatch, got[4].method)
	assert.Equal(t, "/repos/acme/widgets/issues/3/labels/needs triage", got[5].path)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		marker error
	}{
		{http.StatusNotFound, services.ErrNotFound},
		{http.StatusUnauthorized, services.ErrConfiguration},
		{http.StatusUnprocessableEntity, services.ErrValidation},
		{http.StatusBadGateway, services.ErrTransient},
		{http.StatusTooManyRequests, services.ErrTransient},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, `{"message":"nope"}`)
			})
			err := client.Comment(context.Background(), 1, "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.marker)
		})
	}
}

func TestRemoveMissingLabelIsIgnored(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"Label does not exist"}`)
	})
	assert.NoError(t, client.RemoveLabels(context.Background(), 1, "absent"))
}

func TestNewRejectsBadRepository(t *testing.T) {
	_, err := github.New(github.Options{Repository: "nope", Token: "x"})
	require.ErrorIs(t, err, services.ErrConfiguration)
}
